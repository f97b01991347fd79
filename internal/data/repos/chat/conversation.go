package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/vidrag-backend/internal/domain/chat"
	"github.com/yungbote/vidrag-backend/internal/pkg/dbctx"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

var ErrNotFound = errors.New("conversation not found")

type ConversationRepo interface {
	Create(dbc dbctx.Context, c *chat.Conversation) (*chat.Conversation, error)
	GetByID(dbc dbctx.Context, profileID, id uuid.UUID) (*chat.Conversation, error)
	AppendMessages(dbc dbctx.Context, msgs ...*chat.Message) error
	ListMessages(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*chat.Message, error)
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: baseLog.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) Create(dbc dbctx.Context, c *chat.Conversation) (*chat.Conversation, error) {
	if err := dbc.Resolve(r.db).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (r *conversationRepo) GetByID(dbc dbctx.Context, profileID, id uuid.UUID) (*chat.Conversation, error) {
	var c chat.Conversation
	if err := dbc.Resolve(r.db).
		Where("id = ? AND profile_id = ?", id, profileID).
		Limit(1).
		Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, ErrNotFound
	}
	return &c, nil
}

// AppendMessages writes all messages of one conversation in one transaction
// and numbers them after the conversation's newest message. Bumping the
// counter locks the conversation row, so concurrent appends serialize.
func (r *conversationRepo) AppendMessages(dbc dbctx.Context, msgs ...*chat.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	convID := msgs[0].ConversationID
	for _, m := range msgs[1:] {
		if m.ConversationID != convID {
			return fmt.Errorf("append messages: mixed conversations %s and %s", convID, m.ConversationID)
		}
	}
	return dbc.Resolve(r.db).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&chat.Conversation{}).
			Where("id = ?", convID).
			Updates(map[string]any{
				"message_seq": gorm.Expr("message_seq + ?", len(msgs)),
				"updated_at":  time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var conv chat.Conversation
		if err := tx.Select("message_seq").Where("id = ?", convID).Take(&conv).Error; err != nil {
			return err
		}
		seq := conv.MessageSeq - int64(len(msgs))
		for _, m := range msgs {
			seq++
			m.Seq = seq
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListMessages returns the newest limit messages in chronological order.
// limit <= 0 returns all of them.
func (r *conversationRepo) ListMessages(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*chat.Message, error) {
	q := dbc.Resolve(r.db).Where("conversation_id = ?", conversationID).Order("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*chat.Message
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
