package entity

import (
	"fmt"
	"time"
)

// Message 用户私信，只追加
type Message struct {
	ID        string
	Sender    string
	Receiver  string
	Content   string
	MediaURL  string
	CreatedAt time.Time
}

// MessagePayload chat / new_message 事件负载
type MessagePayload struct {
	ID        string    `json:"_id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Content   string    `json:"content"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m *Message) Payload() MessagePayload {
	return MessagePayload{
		ID:        m.ID,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Content:   m.Content,
		MediaURL:  m.MediaURL,
		CreatedAt: m.CreatedAt,
	}
}

func (m *Message) PushNotification() *PushNotification {
	return &PushNotification{
		Title: fmt.Sprintf("New Message from %s", m.Sender),
		Body:  m.Content,
		Data:  map[string]string{"messageId": m.ID},
	}
}

// Notification 通用通知，只追加
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Body      string
	CreatedAt time.Time
}

// NotificationPayload receive_notification 事件负载
type NotificationPayload struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

func (n *Notification) Payload() NotificationPayload {
	return NotificationPayload{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Body,
		CreatedAt: n.CreatedAt,
	}
}

func (n *Notification) PushNotification() *PushNotification {
	return &PushNotification{
		Title: n.Title,
		Body:  n.Body,
		Data:  map[string]string{"notificationId": n.ID},
	}
}
