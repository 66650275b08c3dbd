package core

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Broadcaster fans events out to the connections the registry tracks.
// Delivery is fire-and-forget: one slow or closed connection never blocks or
// fails delivery to the rest, and no delivery failure reaches the caller.
type Broadcaster struct {
	reg *Registry
}

func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{reg: reg}
}

// ToRoom delivers ev to every connection in roomID, optionally excluding one
// (typically the originator of the event).
func (b *Broadcaster) ToRoom(roomID string, ev Event, exclude Conn) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "core.broadcast").Str("event", ev.Name).Msg("marshal event")
		return
	}
	sent, dropped := 0, 0
	for _, conn := range b.reg.ConnsInRoom(roomID) {
		if exclude != nil && conn == exclude {
			continue
		}
		if err := conn.TrySend(data); err != nil {
			dropped++
			continue
		}
		sent++
	}
	log.Debug().Str("module", "core.broadcast").Str("event", ev.Name).Str("room", roomID).
		Int("sent", sent).Int("dropped", dropped).Msg("room broadcast")
}

// ToAll delivers ev to every registered connection.
func (b *Broadcaster) ToAll(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "core.broadcast").Str("event", ev.Name).Msg("marshal event")
		return
	}
	for _, conn := range b.reg.AllConns() {
		_ = conn.TrySend(data)
	}
}

// ToConn delivers ev to a single connection, used for scoped error responses.
func (b *Broadcaster) ToConn(conn Conn, ev Event) {
	if conn == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "core.broadcast").Str("event", ev.Name).Msg("marshal event")
		return
	}
	_ = conn.TrySend(data)
}
