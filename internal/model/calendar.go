package model

import "time"

// DefaultUserColor is assigned to users created without a color.
const DefaultUserColor = "#3a87ad"

// User is a calendar participant. Color drives how their events are rendered
// in other users' views.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is a calendar entry as stored.
type Event struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartAt     time.Time `json:"start"`
	EndAt       time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	OwnerID     int64     `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EventView is an Event joined with its owner. It is the payload of create and
// update change records, so clients can render it without another round-trip.
type EventView struct {
	Event
	OwnerName  string `json:"owner_name"`
	OwnerColor string `json:"owner_color"`
}

// EventRef is the payload of delete change records.
type EventRef struct {
	ID int64 `json:"id"`
}

// Notification is the payload of broadcast change records.
type Notification struct {
	Message  string            `json:"message"`
	Severity string            `json:"severity,omitempty"` // info, warning, error
	Metadata map[string]string `json:"metadata,omitempty"`
}

// EventFilter holds criteria for listing events.
type EventFilter struct {
	OwnerIDs []int64   `json:"owner_ids,omitempty"`
	From     time.Time `json:"from,omitempty"` // events ending after From
	To       time.Time `json:"to,omitempty"`   // events starting before To
	Limit    int       `json:"limit,omitempty"`
}
