package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message represents a message in a service request conversation
type Message struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	ServiceRequestID string    `gorm:"size:36;not null;index" json:"service_request_id"`
	SenderID         *string   `gorm:"size:36;index" json:"sender_id"` // null when the requester writes without an account
	SenderName       string    `gorm:"size:255;not null" json:"sender_name"`
	SenderEmail      string    `gorm:"size:255;not null" json:"sender_email"`
	Body             string    `gorm:"type:text;not null" json:"body"`
	IsAdminReply     bool      `gorm:"not null" json:"is_admin_reply"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName specifies the table name for the Message model
func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
