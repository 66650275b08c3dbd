package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/store"
)

// SendMessage validates, persists and fans out one chat message from a
// current room member. Both the socket path and the REST path land here:
// every message that is broadcast is also in history, with a server-assigned
// id and timestamp.
func (c *Coordinator) SendMessage(ctx context.Context, identity domain.Identity, roomID, content string) (*domain.Message, error) {
	if err := domain.ValidateContent(content); err != nil {
		return nil, err
	}

	room, err := c.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != domain.StatusActive {
		return nil, domain.ErrRoomInactive
	}
	// Only a current occupant may post.
	if current, ok := c.reg.CurrentRoom(identity.Subject); !ok || current != roomID {
		return nil, domain.ErrNotMember
	}

	msg := &domain.Message{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		AuthorID:   identity.Subject,
		AuthorName: identity.DisplayName(),
		Content:    strings.TrimSpace(content),
		CreatedAt:  time.Now().UTC(),
	}

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	if err := c.msgs.Create(sctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	c.bc.ToRoom(roomID, core.NewEvent(core.EventNewMessage, msg), nil)
	return msg, nil
}

// ListMessages pages through a room's history in chronological order.
func (c *Coordinator) ListMessages(ctx context.Context, roomID string, page, perPage int) (*store.MessagePage, error) {
	if _, err := c.loadRoom(ctx, roomID); err != nil {
		return nil, err
	}
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	return c.msgs.ListByRoom(sctx, roomID, page, perPage)
}
