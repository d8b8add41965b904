package model

import (
	"encoding/json"
	"time"
)

// Change event types. The first group is produced by mutation handlers and
// stored in the change log; the second group is synthesized by stream
// sessions and never persisted.
const (
	ChangeCreate      = "create"
	ChangeUpdate      = "update"
	ChangeDelete      = "delete"
	ChangeUserCreated = "user_created"
	ChangeNotify      = "notification"

	FrameHeartbeat = "heartbeat"
	FrameTimeout   = "timeout"
	FrameError     = "error"
)

// ChangeRecord is one row of the append-only change log. ID is assigned by the
// store, is strictly increasing in insertion order and never reused.
type ChangeRecord struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// IsSessionFrame reports whether t is reserved for frames emitted by stream
// sessions. Such types cannot be appended to the log.
func IsSessionFrame(t string) bool {
	switch t {
	case FrameHeartbeat, FrameTimeout, FrameError:
		return true
	}
	return false
}

// IsMutationChange reports whether t is produced by the user and event
// mutation handlers. Broadcasts cannot use these types.
func IsMutationChange(t string) bool {
	switch t {
	case ChangeCreate, ChangeUpdate, ChangeDelete, ChangeUserCreated:
		return true
	}
	return false
}

// RetentionPolicy bounds the size of the change log. A record is removed when
// either condition holds. Zero values disable the respective condition.
type RetentionPolicy struct {
	KeepLast int64         `json:"keep_last,omitempty" toml:"keep_last"`
	MaxAge   time.Duration `json:"max_age,omitempty" toml:"max_age"`
}

// IsZero reports whether the policy removes nothing.
func (p RetentionPolicy) IsZero() bool {
	return p.KeepLast <= 0 && p.MaxAge <= 0
}

// Cutoff returns the createdAt threshold for the age condition relative to now.
// ok is false when the age condition is disabled.
func (p RetentionPolicy) Cutoff(now time.Time) (cutoff time.Time, ok bool) {
	if p.MaxAge <= 0 {
		return time.Time{}, false
	}
	return now.Add(-p.MaxAge), true
}

// SessionFrame is the payload of heartbeat, timeout and error frames. Cursor
// is the last record id the session delivered.
type SessionFrame struct {
	Cursor    int64  `json:"cursor"`
	Time      string `json:"time,omitempty"`
	Reconnect bool   `json:"reconnect,omitempty"`
	Error     string `json:"error,omitempty"`
}
