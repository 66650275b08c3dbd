package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/domain"
)

// Join moves the identity into roomID. An identity already in another room is
// implicitly evicted from it first; joining the room it already occupies is a
// no-op. Validation and membership mutation happen atomically under the
// room's lock, with no store call in between.
func (c *Coordinator) Join(ctx context.Context, identity domain.Identity, roomID string) error {
	lk := c.identityMu(identity.Subject)
	lk.Lock()
	defer lk.Unlock()

	if len(identity.Roles) == 0 {
		return ErrNoRoles
	}

	if prev, ok := c.reg.CurrentRoom(identity.Subject); ok {
		if prev == roomID {
			return nil
		}
		c.evict(ctx, identity, prev)
	}

	room, err := c.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}

	mu := c.roomMu(roomID)
	mu.Lock()
	// The live set is authoritative while the coordinator runs; the document
	// carries whatever was last reconciled.
	room.MemberIDs = domain.MemberList(c.reg.MemberIDs(roomID))
	if err := room.Joinable(identity.Subject); err != nil {
		mu.Unlock()
		return err
	}
	room.AddMember(identity.Subject)
	c.reg.SetCurrentRoom(identity, roomID)
	members := c.reg.MembersOf(roomID)
	mu.Unlock()

	c.persistMembers(ctx, roomID, room.MemberIDs)

	joiner, _ := c.reg.Conn(identity.Subject)
	c.bc.ToRoom(roomID, core.NewEvent(core.EventUserJoined, core.PresencePayload{
		UserID:   identity.Subject,
		Username: identity.DisplayName(),
		Role:     identity.PrimaryRole(),
	}), joiner)
	c.bc.ToRoom(roomID, core.NewEvent(core.EventActiveUsers, members), nil)

	log.Info().Str("module", "app.coordinator").Str("subject", identity.Subject).
		Str("room", roomID).Int("members", len(members)).Msg("joined room")
	return nil
}

// Leave evicts the identity from roomID. Leaving a room the identity does not
// occupy is a no-op.
func (c *Coordinator) Leave(ctx context.Context, identity domain.Identity, roomID string) error {
	lk := c.identityMu(identity.Subject)
	lk.Lock()
	defer lk.Unlock()

	current, ok := c.reg.CurrentRoom(identity.Subject)
	if !ok || current != roomID {
		return nil
	}
	c.evict(ctx, identity, roomID)
	return nil
}

// evict removes the identity from roomID, persists the shrunk member set and
// notifies the remaining members. Callers hold the identity's lock.
func (c *Coordinator) evict(ctx context.Context, identity domain.Identity, roomID string) {
	mu := c.roomMu(roomID)
	mu.Lock()
	c.reg.ClearRoom(identity.Subject)
	live := domain.MemberList(c.reg.MemberIDs(roomID))
	members := c.reg.MembersOf(roomID)
	mu.Unlock()

	c.persistMembers(ctx, roomID, live)

	c.bc.ToRoom(roomID, core.NewEvent(core.EventUserLeft, core.PresencePayload{
		UserID:   identity.Subject,
		Username: identity.DisplayName(),
	}), nil)
	c.bc.ToRoom(roomID, core.NewEvent(core.EventActiveUsers, members), nil)

	log.Info().Str("module", "app.coordinator").Str("subject", identity.Subject).
		Str("room", roomID).Msg("left room")
}
