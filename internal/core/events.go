// Package core owns live presence state and event fan-out. It never touches
// storage or transport framing; adapters own their connections.
package core

import "github.com/parleychat/parley/internal/domain"

// Event names produced to connections.
const (
	EventUserJoined  = "user joined"
	EventActiveUsers = "active users"
	EventUserLeft    = "user left"
	EventNewMessage  = "new message"
	EventNewRoom     = "new room"
	EventRoomStatus  = "room status changed"
	EventError       = "error"
)

// Scoped error types carried in an error event payload.
const (
	ErrTypeJoinRoom    = "JOIN_ROOM_ERROR"
	ErrTypeLeaveRoom   = "LEAVE_ROOM_ERROR"
	ErrTypeSendMessage = "SEND_MESSAGE_ERROR"
	ErrTypeBadPayload  = "BAD_PAYLOAD"
	ErrTypeRateLimited = "RATE_LIMITED"
)

// Event is the typed envelope delivered to connections.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

func NewEvent(name string, data any) Event {
	return Event{Name: name, Data: data}
}

// PresencePayload announces one identity entering or leaving a room.
type PresencePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
}

// MemberInfo is one entry of an active-users snapshot.
type MemberInfo struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// StatusPayload announces a room status transition to its members.
type StatusPayload struct {
	RoomID string            `json:"roomId"`
	Status domain.RoomStatus `json:"status"`
	Room   *domain.Room      `json:"room"`
}

// ErrorPayload is delivered to the originating connection only.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func ErrorEvent(errType, message string) Event {
	return NewEvent(EventError, ErrorPayload{Type: errType, Message: message})
}
