// Package app coordinates room presence and message traffic. It serializes
// membership mutations per identity and per room, keeps the session registry
// and the store's view of each room reconciled, and drives event fan-out.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/store"
)

// ErrNoRoles rejects joins from identities without any assigned role.
var ErrNoRoles = errors.New("identity has no assigned roles")

// RoomStore is the slice of the room repository the coordinator uses.
type RoomStore interface {
	Create(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, id string) (*domain.Room, error)
	List(ctx context.Context, f store.RoomFilter) (*store.RoomPage, error)
	SaveMembers(ctx context.Context, id string, members domain.MemberList) error
	UpdateStatus(ctx context.Context, room *domain.Room) error
}

// MessageStore is the slice of the message repository the coordinator uses.
type MessageStore interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByRoom(ctx context.Context, roomID string, page, perPage int) (*store.MessagePage, error)
}

// Coordinator owns the join/leave/send/disconnect protocol. One instance per
// process; all connection handlers share it.
type Coordinator struct {
	reg   *core.Registry
	bc    *core.Broadcaster
	rooms RoomStore
	msgs  MessageStore

	// Bounds every store call so a slow collaborator cannot stall a
	// connection handler.
	storeTimeout time.Duration

	mu      sync.Mutex
	roomMus map[string]*sync.Mutex
	idMus   map[string]*sync.Mutex
}

func NewCoordinator(reg *core.Registry, bc *core.Broadcaster, rooms RoomStore, msgs MessageStore, storeTimeout time.Duration) *Coordinator {
	return &Coordinator{
		reg:          reg,
		bc:           bc,
		rooms:        rooms,
		msgs:         msgs,
		storeTimeout: storeTimeout,
		roomMus:      make(map[string]*sync.Mutex),
		idMus:        make(map[string]*sync.Mutex),
	}
}

// Connect records conn as the identity's current connection. A newer
// connection supersedes the registry entry without closing the old transport;
// broadcasts target only the most recent one.
func (c *Coordinator) Connect(identity domain.Identity, conn core.Conn) {
	c.reg.Register(identity, conn)
	log.Info().Str("module", "app.coordinator").Str("subject", identity.Subject).
		Str("user", identity.DisplayName()).Msg("identity connected")
}

// Disconnect leaves whatever room the identity occupies and removes its
// session. Safe to call with no room occupied, and a no-op for superseded
// connections.
func (c *Coordinator) Disconnect(ctx context.Context, identity domain.Identity, conn core.Conn) {
	lk := c.identityMu(identity.Subject)
	lk.Lock()
	defer lk.Unlock()

	if current, ok := c.reg.Conn(identity.Subject); ok && conn != nil && current != conn {
		// A newer connection owns this identity's presence now.
		return
	}
	if roomID, ok := c.reg.CurrentRoom(identity.Subject); ok {
		c.evict(ctx, identity, roomID)
	}
	c.reg.Unregister(identity.Subject, conn)
	log.Info().Str("module", "app.coordinator").Str("subject", identity.Subject).Msg("identity disconnected")
}

// roomMu returns the mutex serializing membership mutations of one room.
func (c *Coordinator) roomMu(roomID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.roomMus[roomID]
	if !ok {
		m = &sync.Mutex{}
		c.roomMus[roomID] = m
	}
	return m
}

// identityMu returns the mutex serializing one identity's operations, so a
// disconnect cannot race a join arriving on another connection.
func (c *Coordinator) identityMu(subject string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.idMus[subject]
	if !ok {
		m = &sync.Mutex{}
		c.idMus[subject] = m
	}
	return m
}

func (c *Coordinator) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.storeTimeout)
}

func (c *Coordinator) loadRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	return c.rooms.Get(sctx, roomID)
}

// persistMembers rewrites the room document's member set from the live one.
// Persistence failures are logged, not surfaced: live presence has already
// moved on and broadcasts keep every member's view converged.
func (c *Coordinator) persistMembers(ctx context.Context, roomID string, members domain.MemberList) {
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	if err := c.rooms.SaveMembers(sctx, roomID, members); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("room", roomID).Msg("persist member set")
	}
}
