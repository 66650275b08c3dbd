package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/store"
)

// CreateRoomInput carries already-validated room parameters.
type CreateRoomInput struct {
	Name        string
	Description string
	MaxMembers  *int
	IsPrivate   bool
}

// CreateRoom persists a new active room and announces it to every connected
// client.
func (c *Coordinator) CreateRoom(ctx context.Context, identity domain.Identity, in CreateRoomInput) (*domain.Room, error) {
	room := &domain.Room{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Description:  in.Description,
		CreatedBy:    identity.Subject,
		MemberIDs:    domain.MemberList{},
		MaxMembers:   in.MaxMembers,
		IsPrivate:    in.IsPrivate,
		Status:       domain.StatusActive,
		LastActivity: time.Now().UTC(),
	}

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	if err := c.rooms.Create(sctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	c.bc.ToAll(core.NewEvent(core.EventNewRoom, room))
	log.Info().Str("module", "app.coordinator").Str("room", room.ID).
		Str("creator", identity.Subject).Msg("room created")
	return room, nil
}

// SetStatus transitions a room's lifecycle status on behalf of its creator.
// The transition is persisted first; only then is the status event broadcast
// and, for transitions away from active, every live member evicted. A failed
// store write leaves both the registry and the members' view untouched.
func (c *Coordinator) SetStatus(ctx context.Context, identity domain.Identity, roomID string, status domain.RoomStatus) (*domain.Room, error) {
	room, err := c.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := room.SetStatus(identity.Subject, status); err != nil {
		return nil, err
	}

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	if err := c.rooms.UpdateStatus(sctx, room); err != nil {
		return nil, fmt.Errorf("persist status: %w", err)
	}

	// Broadcast before eviction so departing members still receive it.
	c.bc.ToRoom(roomID, core.NewEvent(core.EventRoomStatus, core.StatusPayload{
		RoomID: roomID,
		Status: status,
		Room:   room,
	}), nil)

	if status != domain.StatusActive {
		mu := c.roomMu(roomID)
		mu.Lock()
		for _, subject := range c.reg.MemberIDs(roomID) {
			c.reg.ClearRoom(subject)
		}
		mu.Unlock()
	}

	log.Info().Str("module", "app.coordinator").Str("room", roomID).
		Str("status", string(status)).Msg("room status changed")
	return room, nil
}

// ListRooms pages through the room directory.
func (c *Coordinator) ListRooms(ctx context.Context, f store.RoomFilter) (*store.RoomPage, error) {
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	return c.rooms.List(sctx, f)
}

// GetRoom loads one room document.
func (c *Coordinator) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	return c.loadRoom(ctx, roomID)
}
