package domain

import (
	"errors"
	"strings"
	"time"
)

const MaxMessageLen = 1000

var (
	ErrEmptyMessage   = errors.New("message content is empty")
	ErrMessageTooLong = errors.New("message content exceeds maximum length")
)

// Message is a persisted chat message. The author fields are denormalized
// from the identity at send time so history reads need no identity lookup.
type Message struct {
	ID         string    `gorm:"primarykey;size:36" json:"id"`
	RoomID     string    `gorm:"size:36;index;not null" json:"roomId"`
	AuthorID   string    `gorm:"size:64;not null" json:"authorId"`
	AuthorName string    `gorm:"size:254" json:"authorName"`
	Content    string    `gorm:"size:1000;not null" json:"content"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}

func (Message) TableName() string { return "messages" }

// ValidateContent enforces the 1..MaxMessageLen bound on trimmed content.
func ValidateContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ErrEmptyMessage
	}
	if len(trimmed) > MaxMessageLen {
		return ErrMessageTooLong
	}
	return nil
}
