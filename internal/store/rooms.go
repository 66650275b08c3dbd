package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/parleychat/parley/internal/domain"
)

// RoomRepo provides access to room storage.
type RoomRepo struct {
	db *gorm.DB
}

func NewRoomRepo(db *gorm.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// RoomFilter selects a page of the room directory.
type RoomFilter struct {
	Status    domain.RoomStatus
	IsPrivate *bool
	Page      int
	PerPage   int
}

// RoomPage is one page of rooms plus pagination metadata.
type RoomPage struct {
	Rooms      []*domain.Room `json:"rooms"`
	Page       int            `json:"page"`
	TotalPages int            `json:"totalPages"`
	TotalRooms int64          `json:"totalRooms"`
}

func (r *RoomRepo) Create(ctx context.Context, room *domain.Room) error {
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

func (r *RoomRepo) Get(ctx context.Context, id string) (*domain.Room, error) {
	var room domain.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find room: %w", err)
	}
	return &room, nil
}

// List returns rooms matching f, most recently active first.
func (r *RoomRepo) List(ctx context.Context, f RoomFilter) (*RoomPage, error) {
	status := f.Status
	if status == "" {
		status = domain.StatusActive
	}
	page := normalizePage(f.Page)

	q := r.db.WithContext(ctx).Model(&domain.Room{}).Where("status = ?", status)
	if f.IsPrivate != nil {
		q = q.Where("is_private = ?", *f.IsPrivate)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count rooms: %w", err)
	}

	var rooms []*domain.Room
	err := q.Order("last_activity DESC").
		Offset((page - 1) * f.PerPage).
		Limit(f.PerPage).
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	return &RoomPage{
		Rooms:      rooms,
		Page:       page,
		TotalPages: totalPages(total, f.PerPage),
		TotalRooms: total,
	}, nil
}

// SaveMembers rewrites the persisted member set of a room and advances its
// last-activity timestamp.
func (r *RoomRepo) SaveMembers(ctx context.Context, roomID string, members domain.MemberList) error {
	if members == nil {
		members = domain.MemberList{}
	}
	result := r.db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ?", roomID).
		Select("member_ids", "last_activity").
		Updates(&domain.Room{MemberIDs: members, LastActivity: time.Now().UTC()})
	if err := result.Error; err != nil {
		return fmt.Errorf("save members: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus persists a status transition together with the member set it
// cleared.
func (r *RoomRepo) UpdateStatus(ctx context.Context, room *domain.Room) error {
	if room.MemberIDs == nil {
		room.MemberIDs = domain.MemberList{}
	}
	result := r.db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ?", room.ID).
		Select("status", "member_ids", "last_activity").
		Updates(room)
	if err := result.Error; err != nil {
		return fmt.Errorf("update room status: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
