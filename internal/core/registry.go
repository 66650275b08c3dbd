package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/domain"
)

// Conn is a live outbound connection. Owned by the adapter; the adapter must
// Close() it.
type Conn interface {
	TrySend([]byte) error
	Close()
}

type session struct {
	identity domain.Identity
	conn     Conn
	roomID   string
}

// Registry maps identities to their current connection and room. It is the
// only holder of live presence state; all access goes through its lock.
// A session may carry a room without a connection (REST-joined members).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	byRoom   map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		byRoom:   make(map[string]map[string]struct{}),
	}
}

// Register binds a connection to an identity, superseding any prior
// connection mapping (last writer wins). The prior transport is not closed
// here and any room the identity occupies is untouched.
func (r *Registry) Register(identity domain.Identity, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.ensure(identity)
	s.conn = conn
	log.Info().Str("module", "core.registry").Str("subject", identity.Subject).Msg("connection registered")
}

// Unregister removes the identity's session if conn is still its current
// connection. A superseded connection disconnecting must not tear down the
// newer session.
func (r *Registry) Unregister(subject string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[subject]
	if !ok || (conn != nil && s.conn != conn) {
		return false
	}
	r.dropRoom(s, subject)
	delete(r.sessions, subject)
	log.Info().Str("module", "core.registry").Str("subject", subject).Msg("session unregistered")
	return true
}

// Conn returns the identity's current connection.
func (r *Registry) Conn(subject string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[subject]
	if !ok || s.conn == nil {
		return nil, false
	}
	return s.conn, true
}

// CurrentRoom returns the room the identity occupies, if any.
func (r *Registry) CurrentRoom(subject string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[subject]
	if !ok || s.roomID == "" {
		return "", false
	}
	return s.roomID, true
}

// SetCurrentRoom records the identity as occupying roomID, replacing any
// previous room association.
func (r *Registry) SetCurrentRoom(identity domain.Identity, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.ensure(identity)
	r.dropRoom(s, identity.Subject)
	s.roomID = roomID
	if roomID != "" {
		set, ok := r.byRoom[roomID]
		if !ok {
			set = make(map[string]struct{})
			r.byRoom[roomID] = set
		}
		set[identity.Subject] = struct{}{}
	}
}

// ClearRoom marks the identity as occupying no room.
func (r *Registry) ClearRoom(subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[subject]
	if !ok {
		return
	}
	r.dropRoom(s, subject)
	if s.conn == nil {
		// Nothing left to track for a transportless member.
		delete(r.sessions, subject)
	}
}

// Occupancy is the number of identities tracked as members of roomID.
func (r *Registry) Occupancy(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRoom[roomID])
}

// MemberIDs returns the subjects occupying roomID.
func (r *Registry) MemberIDs(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byRoom[roomID]))
	for subject := range r.byRoom[roomID] {
		out = append(out, subject)
	}
	return out
}

// MembersOf returns the presence snapshot of roomID for fan-out.
func (r *Registry) MembersOf(roomID string) []MemberInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberInfo, 0, len(r.byRoom[roomID]))
	for subject := range r.byRoom[roomID] {
		if s, ok := r.sessions[subject]; ok {
			out = append(out, MemberInfo{UserID: subject, Username: s.identity.DisplayName()})
		}
	}
	return out
}

// ConnsInRoom returns the connections of everyone in roomID. Members without
// a live connection are skipped.
func (r *Registry) ConnsInRoom(roomID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.byRoom[roomID]))
	for subject := range r.byRoom[roomID] {
		if s, ok := r.sessions[subject]; ok && s.conn != nil {
			out = append(out, s.conn)
		}
	}
	return out
}

// AllConns returns every registered connection.
func (r *Registry) AllConns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.conn != nil {
			out = append(out, s.conn)
		}
	}
	return out
}

func (r *Registry) ensure(identity domain.Identity) *session {
	s, ok := r.sessions[identity.Subject]
	if !ok {
		s = &session{identity: identity}
		r.sessions[identity.Subject] = s
	} else {
		s.identity = identity
	}
	return s
}

func (r *Registry) dropRoom(s *session, subject string) {
	if s.roomID == "" {
		return
	}
	if set, ok := r.byRoom[s.roomID]; ok {
		delete(set, subject)
		if len(set) == 0 {
			delete(r.byRoom, s.roomID)
		}
	}
	s.roomID = ""
}
