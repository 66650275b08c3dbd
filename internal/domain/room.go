package domain

import (
	"errors"
	"time"
)

type RoomStatus string

const (
	StatusActive   RoomStatus = "active"
	StatusArchived RoomStatus = "archived"
	StatusClosed   RoomStatus = "closed"
)

func (s RoomStatus) Valid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusClosed:
		return true
	}
	return false
}

var (
	ErrRoomInactive  = errors.New("room is not active")
	ErrRoomFull      = errors.New("room is full")
	ErrRoomPrivate   = errors.New("cannot join private room")
	ErrNotMember     = errors.New("not a member of this room")
	ErrNotCreator    = errors.New("only the room creator may change its status")
	ErrInvalidStatus = errors.New("invalid room status")
)

// Room is the persisted room document. MemberIDs is the member set as last
// reconciled from live presence; the coordinator rewrites it on every
// membership mutation.
type Room struct {
	ID           string     `gorm:"primarykey;size:36" json:"id"`
	Name         string     `gorm:"size:50;not null" json:"name"`
	Description  string     `gorm:"size:200;not null" json:"description"`
	CreatedBy    string     `gorm:"size:64;index;not null" json:"createdBy"`
	MemberIDs    MemberList `gorm:"serializer:json" json:"memberIds"`
	MaxMembers   *int       `json:"maxMembers,omitempty"`
	IsPrivate    bool       `json:"isPrivate"`
	Status       RoomStatus `gorm:"size:16;index" json:"status"`
	LastActivity time.Time  `gorm:"index" json:"lastActivity"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (Room) TableName() string { return "rooms" }

// MemberList is a set of identity subjects stored as a JSON column.
type MemberList []string

func (m MemberList) Contains(id string) bool {
	for _, v := range m {
		if v == id {
			return true
		}
	}
	return false
}

// IsFull reports whether the room is at capacity. No max means unbounded.
func (r *Room) IsFull() bool {
	if r.MaxMembers == nil {
		return false
	}
	return len(r.MemberIDs) >= *r.MaxMembers
}

// Joinable answers whether actorID may be added as one more member.
// A typed error names the first failing rule; nil means the join may proceed.
func (r *Room) Joinable(actorID string) error {
	if r.Status != StatusActive {
		return ErrRoomInactive
	}
	if r.IsPrivate && r.CreatedBy != actorID {
		return ErrRoomPrivate
	}
	if r.IsFull() {
		return ErrRoomFull
	}
	return nil
}

// AddMember appends id to the member set. Adding an existing member is a
// no-op; the return value reports whether the set changed.
func (r *Room) AddMember(id string) bool {
	if r.MemberIDs.Contains(id) {
		return false
	}
	r.MemberIDs = append(r.MemberIDs, id)
	r.Touch()
	return true
}

// RemoveMember deletes id from the member set, reporting whether it was
// present. Removing an absent member is a no-op.
func (r *Room) RemoveMember(id string) bool {
	for i, v := range r.MemberIDs {
		if v == id {
			r.MemberIDs = append(r.MemberIDs[:i], r.MemberIDs[i+1:]...)
			r.Touch()
			return true
		}
	}
	return false
}

// SetStatus transitions the room to status on behalf of actorID. Only the
// creator may do this; any transition away from active clears the member set.
func (r *Room) SetStatus(actorID string, status RoomStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	if r.CreatedBy != actorID {
		return ErrNotCreator
	}
	r.Status = status
	if status != StatusActive {
		r.MemberIDs = nil
	}
	r.Touch()
	return nil
}

func (r *Room) Touch() { r.LastActivity = time.Now().UTC() }
