package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// MessageRepositoryMySQL MySQL实现
type MessageRepositoryMySQL struct {
	db *gorm.DB
}

func NewMessageRepositoryMySQL(db *gorm.DB) out.MessageRepository {
	return &MessageRepositoryMySQL{db: db}
}

func (r *MessageRepositoryMySQL) Create(ctx context.Context, msg *entity.Message) error {
	if msg.ID == "" {
		msg.ID = entity.NewID()
	}
	return r.db.WithContext(ctx).Create(&MessageModel{
		ID:         msg.ID,
		SenderID:   msg.Sender,
		ReceiverID: msg.Receiver,
		Content:    msg.Content,
		MediaURL:   msg.MediaURL,
		CreatedAt:  msg.CreatedAt,
	}).Error
}

// NotificationRepositoryMySQL MySQL实现
type NotificationRepositoryMySQL struct {
	db *gorm.DB
}

func NewNotificationRepositoryMySQL(db *gorm.DB) out.NotificationRepository {
	return &NotificationRepositoryMySQL{db: db}
}

func (r *NotificationRepositoryMySQL) Create(ctx context.Context, n *entity.Notification) error {
	if n.ID == "" {
		n.ID = entity.NewID()
	}
	return r.db.WithContext(ctx).Create(&NotificationModel{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Body:      n.Body,
		CreatedAt: n.CreatedAt,
	}).Error
}
