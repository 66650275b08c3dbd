package core

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/parleychat/parley/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	fail   bool
	closed bool
}

func (f *fakeConn) TrySend(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("backpressure")
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) events(t *testing.T) []Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, 0, len(f.sent))
	for _, raw := range f.sent {
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		out = append(out, ev)
	}
	return out
}

func ident(subject string) domain.Identity {
	return domain.Identity{Subject: subject, Email: subject + "@example.com", Roles: []string{"user"}}
}

func TestRegistrySingleRoomInvariant(t *testing.T) {
	reg := NewRegistry()
	u := ident("u1")
	reg.Register(u, &fakeConn{})

	reg.SetCurrentRoom(u, "r1")
	reg.SetCurrentRoom(u, "r2")

	room, ok := reg.CurrentRoom("u1")
	if !ok || room != "r2" {
		t.Fatalf("CurrentRoom = %q, %v; want r2", room, ok)
	}
	if reg.Occupancy("r1") != 0 {
		t.Error("identity still tracked in previous room")
	}
	if reg.Occupancy("r2") != 1 {
		t.Error("identity not tracked in current room")
	}
}

func TestRegistryLastWriterWins(t *testing.T) {
	reg := NewRegistry()
	u := ident("u1")
	old := &fakeConn{}
	newer := &fakeConn{}

	reg.Register(u, old)
	reg.SetCurrentRoom(u, "r1")
	reg.Register(u, newer)

	conn, ok := reg.Conn("u1")
	if !ok || conn != Conn(newer) {
		t.Fatal("newest connection should win")
	}
	if old.closed {
		t.Error("superseding must not close the prior transport")
	}
	if room, _ := reg.CurrentRoom("u1"); room != "r1" {
		t.Error("re-registering must not evict the identity from its room")
	}

	// The superseded connection going away must not tear down the session.
	if reg.Unregister("u1", old) {
		t.Error("stale connection unregistered the live session")
	}
	if _, ok := reg.Conn("u1"); !ok {
		t.Fatal("session lost after stale unregister")
	}

	if !reg.Unregister("u1", newer) {
		t.Error("current connection should unregister")
	}
	if _, ok := reg.CurrentRoom("u1"); ok {
		t.Error("room mapping should be gone after unregister")
	}
}

func TestRegistryRoomSnapshot(t *testing.T) {
	reg := NewRegistry()
	c1, c2 := &fakeConn{}, &fakeConn{}
	reg.Register(ident("u1"), c1)
	reg.Register(ident("u2"), c2)
	reg.SetCurrentRoom(ident("u1"), "r1")
	reg.SetCurrentRoom(ident("u2"), "r1")

	// Transportless member joined over REST.
	reg.SetCurrentRoom(ident("u3"), "r1")

	if got := reg.Occupancy("r1"); got != 3 {
		t.Errorf("Occupancy = %d, want 3", got)
	}
	if got := len(reg.MembersOf("r1")); got != 3 {
		t.Errorf("MembersOf = %d entries, want 3", got)
	}
	if got := len(reg.ConnsInRoom("r1")); got != 2 {
		t.Errorf("ConnsInRoom = %d, want 2 (transportless member skipped)", got)
	}

	reg.ClearRoom("u3")
	if got := reg.Occupancy("r1"); got != 2 {
		t.Errorf("Occupancy after ClearRoom = %d, want 2", got)
	}
}

func TestBroadcasterTargeting(t *testing.T) {
	reg := NewRegistry()
	bc := NewBroadcaster(reg)

	inRoom1, inRoom2, outside := &fakeConn{}, &fakeConn{}, &fakeConn{}
	reg.Register(ident("u1"), inRoom1)
	reg.Register(ident("u2"), inRoom2)
	reg.Register(ident("u3"), outside)
	reg.SetCurrentRoom(ident("u1"), "r1")
	reg.SetCurrentRoom(ident("u2"), "r1")

	bc.ToRoom("r1", NewEvent(EventUserJoined, PresencePayload{UserID: "u2"}), inRoom2)

	if len(inRoom1.events(t)) != 1 {
		t.Error("room member should receive the event")
	}
	if len(inRoom2.events(t)) != 0 {
		t.Error("excluded connection must not receive the event")
	}
	if len(outside.events(t)) != 0 {
		t.Error("connection outside the room must not receive the event")
	}

	bc.ToAll(NewEvent(EventNewRoom, nil))
	if len(outside.events(t)) != 1 {
		t.Error("ToAll should reach unjoined connections")
	}

	bc.ToConn(outside, ErrorEvent(ErrTypeJoinRoom, "nope"))
	evs := outside.events(t)
	if len(evs) != 2 || evs[1].Name != EventError {
		t.Errorf("ToConn should deliver the error event, got %+v", evs)
	}
}

func TestBroadcasterBestEffort(t *testing.T) {
	reg := NewRegistry()
	bc := NewBroadcaster(reg)

	healthy := &fakeConn{}
	stuck := &fakeConn{fail: true}
	reg.Register(ident("u1"), healthy)
	reg.Register(ident("u2"), stuck)
	reg.SetCurrentRoom(ident("u1"), "r1")
	reg.SetCurrentRoom(ident("u2"), "r1")

	bc.ToRoom("r1", NewEvent(EventNewMessage, nil), nil)

	if len(healthy.events(t)) != 1 {
		t.Error("one failing connection must not block delivery to others")
	}
}
