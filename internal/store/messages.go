package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/parleychat/parley/internal/domain"
)

// MessageRepo provides access to message storage.
type MessageRepo struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// MessagePage is one page of messages in chronological order plus pagination
// metadata.
type MessagePage struct {
	Messages      []*domain.Message `json:"messages"`
	Page          int               `json:"page"`
	TotalPages    int               `json:"totalPages"`
	TotalMessages int64             `json:"totalMessages"`
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListByRoom pages through a room's history newest-first, then reverses each
// page so callers always see chronological order.
func (r *MessageRepo) ListByRoom(ctx context.Context, roomID string, page, perPage int) (*MessagePage, error) {
	page = normalizePage(page)

	q := r.db.WithContext(ctx).Model(&domain.Message{}).Where("room_id = ?", roomID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	var messages []*domain.Message
	err := q.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return &MessagePage{
		Messages:      messages,
		Page:          page,
		TotalPages:    totalPages(total, perPage),
		TotalMessages: total,
	}, nil
}
