package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Conversation struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProfileID uuid.UUID      `gorm:"type:uuid;not null;index" json:"profile_id"`
	Title     string         `gorm:"column:title;not null;default:''" json:"title"`
	VideoIDs  datatypes.JSON `gorm:"column:video_ids" json:"video_ids"`
	// MessageSeq is the Seq of the newest message.
	MessageSeq int64     `gorm:"column:message_seq;not null;default:0" json:"-"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (Conversation) TableName() string { return "conversation" }

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"conversation_id"`
	Role           string         `gorm:"column:role;not null" json:"role"`
	Content        string         `gorm:"column:content;type:text;not null" json:"content"`
	Citations      datatypes.JSON `gorm:"column:citations" json:"citations,omitempty"`
	// Seq orders messages within a conversation. It is assigned on append.
	Seq       int64     `gorm:"column:seq;not null;default:0;index" json:"seq"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Message) TableName() string { return "message" }

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
