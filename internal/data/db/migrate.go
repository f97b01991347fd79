package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/vidrag-backend/internal/domain/chat"
	"github.com/yungbote/vidrag-backend/internal/domain/video"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&video.Video{},
		&chat.Conversation{},
		&chat.Message{},
	)
}
