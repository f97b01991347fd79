package videos

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/vidrag-backend/internal/domain/video"
	"github.com/yungbote/vidrag-backend/internal/pkg/dbctx"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

var ErrNotFound = errors.New("video not found")

type VideoRepo interface {
	Create(dbc dbctx.Context, v *video.Video) (*video.Video, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*video.Video, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*video.Video, error)
	GetBySource(dbc dbctx.Context, profileID uuid.UUID, sourceID string) (*video.Video, error)
	ListByProfile(dbc dbctx.Context, profileID uuid.UUID) ([]*video.Video, error)
	Transition(dbc dbctx.Context, id uuid.UUID, from, to video.Status, updates map[string]interface{}) (*video.Video, error)
}

type videoRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoRepo(db *gorm.DB, baseLog *logger.Logger) VideoRepo {
	return &videoRepo{db: db, log: baseLog.With("repo", "VideoRepo")}
}

func (r *videoRepo) Create(dbc dbctx.Context, v *video.Video) (*video.Video, error) {
	if v == nil {
		return nil, fmt.Errorf("nil video")
	}
	if v.Status != "" && v.Status != video.StatusQueued {
		return nil, fmt.Errorf("%w: new videos start %s", video.ErrInvalidTransition, video.StatusQueued)
	}
	if err := dbc.Resolve(r.db).Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

func (r *videoRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*video.Video, error) {
	var v video.Video
	err := dbc.Resolve(r.db).Where("id = ?", id).Limit(1).Find(&v).Error
	if err != nil {
		return nil, err
	}
	if v.ID == uuid.Nil {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (r *videoRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*video.Video, error) {
	var out []*video.Video
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Resolve(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *videoRepo) GetBySource(dbc dbctx.Context, profileID uuid.UUID, sourceID string) (*video.Video, error) {
	var v video.Video
	err := dbc.Resolve(r.db).
		Where("profile_id = ? AND source_id = ?", profileID, sourceID).
		Limit(1).
		Find(&v).Error
	if err != nil {
		return nil, err
	}
	if v.ID == uuid.Nil {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (r *videoRepo) ListByProfile(dbc dbctx.Context, profileID uuid.UUID) ([]*video.Video, error) {
	var out []*video.Video
	if err := dbc.Resolve(r.db).
		Where("profile_id = ?", profileID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Transition moves a video from one status to another. The update is
// conditional on the row still being in from, so concurrent writers cannot
// skip a state.
func (r *videoRepo) Transition(dbc dbctx.Context, id uuid.UUID, from, to video.Status, updates map[string]interface{}) (*video.Video, error) {
	if err := video.ValidateTransition(from, to); err != nil {
		return nil, err
	}
	fields := make(map[string]interface{}, len(updates)+2)
	for k, v := range updates {
		fields[k] = v
	}
	fields["status"] = to
	fields["updated_at"] = time.Now().UTC()
	if to == video.StatusQueued {
		fields["failure_reason"] = nil
	}

	db := dbc.Resolve(r.db)
	res := db.Model(&video.Video{}).Where("id = ? AND status = ?", id, from).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := r.GetByID(dbc, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: video %s is %s, not %s", video.ErrInvalidTransition, id, current.Status, from)
	}
	r.log.Debug("Video status changed", "video_id", id, "from", from, "to", to)
	return r.GetByID(dbc, id)
}
