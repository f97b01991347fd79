package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/vidrag-backend/internal/domain/video"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
	"github.com/yungbote/vidrag-backend/internal/platform/index"
)

var tracer = otel.Tracer("vidrag/retrieval")

var (
	ErrNoVideos = errors.New("at least one scoped video is required")
	ErrNoQuery  = errors.New("query is empty")
	// ErrIndexUnavailable is returned only when every scoped query failed
	// because the index service itself was unreachable.
	ErrIndexUnavailable = errors.New("passage index unavailable")
	// ErrQueryEmbedding means the query could not be embedded, so no
	// collection could be searched.
	ErrQueryEmbedding = errors.New("query embedding failed")
)

type Config struct {
	QueryTimeout time.Duration
	ChatTopN     int
	ComposeTopN  int
	// MaxParallel caps concurrent collection queries per request.
	MaxParallel int
}

type Orchestrator struct {
	log      *logger.Logger
	index    index.Client
	searcher index.VectorSearcher
	cfg      Config
}

// Result is the ranked pool plus per-video bookkeeping for logs and callers.
type Result struct {
	Hits    []Hit
	K       int
	Pooled  int
	Missing []string
	Failed  []string
}

// Empty reports whether nothing relevant was found.
func (r *Result) Empty() bool { return r == nil || len(r.Hits) == 0 }

func NewOrchestrator(log *logger.Logger, client index.Client, cfg Config) *Orchestrator {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 8 * time.Second
	}
	if cfg.ChatTopN <= 0 {
		cfg.ChatTopN = DefaultChatTopN
	}
	if cfg.ComposeTopN <= 0 {
		cfg.ComposeTopN = DefaultComposeTopN
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 16
	}
	o := &Orchestrator{log: log.With("service", "RetrievalOrchestrator"), index: client, cfg: cfg}
	if vs, ok := client.(index.VectorSearcher); ok {
		o.searcher = vs
	}
	return o
}

// TopN is the global cut for a mode.
func (o *Orchestrator) TopN(mode Mode) int {
	if mode == ModeCompose {
		return o.cfg.ComposeTopN
	}
	return o.cfg.ChatTopN
}

type outcome struct {
	hits []Hit
	err  error
}

// Retrieve queries every scoped video's collection concurrently, each bounded
// by the per-call timeout, then pools and ranks the hits. A missing collection
// or a failing one contributes nothing. Vector backends embed the query once
// up front; if that fails the whole request fails.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, videoIDs []string, mode Mode) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoQuery
	}
	videoIDs = dedupe(videoIDs)
	if len(videoIDs) == 0 {
		return nil, ErrNoVideos
	}

	ctx, span := tracer.Start(ctx, "retrieval.Retrieve")
	defer span.End()

	k := PerVideoK(len(videoIDs))
	topN := o.TopN(mode)
	span.SetAttributes(attribute.Int("videos", len(videoIDs)), attribute.Int("k", k), attribute.Int("top_n", topN))

	var vector []float32
	if o.searcher != nil {
		ectx, cancel := context.WithTimeout(ctx, o.cfg.QueryTimeout)
		v, err := o.searcher.EmbedQuery(ectx, query)
		cancel()
		if err != nil {
			span.RecordError(err)
			o.log.Error("Query embedding failed", "videos", len(videoIDs), "error", err)
			return nil, fmt.Errorf("%w: %v", ErrQueryEmbedding, err)
		}
		vector = v
	}

	outcomes := make([]outcome, len(videoIDs))
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxParallel)
	for i, id := range videoIDs {
		g.Go(func() error {
			outcomes[i] = o.queryOne(ctx, id, query, vector, k)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{K: k}
	var pooled []Hit
	unavailable := 0
	for i, oc := range outcomes {
		id := videoIDs[i]
		switch {
		case oc.err == nil:
			pooled = append(pooled, oc.hits...)
		case errors.Is(oc.err, index.ErrCollectionNotFound):
			res.Missing = append(res.Missing, id)
		default:
			res.Failed = append(res.Failed, id)
			if errors.Is(oc.err, index.ErrUnavailable) {
				unavailable++
			}
			o.log.Warn("Collection query failed; skipping", "video_id", id, "error", oc.err)
		}
	}
	if unavailable == len(videoIDs) {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, outcomes[0].err)
	}

	res.Pooled = len(pooled)
	res.Hits = Rank(pooled, topN)
	o.log.Debug("Retrieval complete",
		"videos", len(videoIDs), "k", k, "pooled", res.Pooled, "kept", len(res.Hits),
		"missing", len(res.Missing), "failed", len(res.Failed))
	return res, nil
}

func (o *Orchestrator) queryOne(ctx context.Context, videoID, query string, vector []float32, k int) outcome {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.QueryTimeout)
	defer cancel()
	var (
		snippets []index.Snippet
		err      error
	)
	name := video.CollectionName(videoID)
	if vector != nil {
		snippets, err = o.searcher.SearchVector(ctx, name, vector, k)
	} else {
		snippets, err = o.index.TopSnippets(ctx, name, query, k)
	}
	if err != nil {
		return outcome{err: err}
	}
	hits := make([]Hit, len(snippets))
	for i, s := range snippets {
		hits[i] = Hit{VideoID: videoID, Snippet: s}
	}
	return outcome{hits: hits}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
