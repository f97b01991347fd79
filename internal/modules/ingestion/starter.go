package ingestion

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

// Starter hands a queued video to whatever runs ingestion.
type Starter interface {
	StartIngestion(ctx context.Context, videoID uuid.UUID, sourceID string) error
}

// LocalStarter runs ingestion in a goroutine. It is used when no durable
// workflow runner is configured, so failed videos stay FAILED until retried
// by hand.
type LocalStarter struct {
	log         *logger.Logger
	coordinator *Coordinator
	wg          sync.WaitGroup
}

func NewLocalStarter(log *logger.Logger, c *Coordinator) *LocalStarter {
	return &LocalStarter{log: log.With("service", "LocalIngestionStarter"), coordinator: c}
}

func (s *LocalStarter) StartIngestion(ctx context.Context, videoID uuid.UUID, sourceID string) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.coordinator.Ingest(context.WithoutCancel(ctx), videoID, sourceID); err != nil {
			s.log.Warn("Local ingestion failed", "video_id", videoID, "kind", KindOf(err), "error", err)
		}
	}()
	return nil
}

// Wait blocks until every started ingestion has returned.
func (s *LocalStarter) Wait() {
	s.wg.Wait()
}
