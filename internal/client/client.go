// Package client provides a transport-agnostic interface for the calfeed
// service, an HTTP/JSON implementation of it, and the stream client that
// keeps a change stream open across session rotations and failures.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/model"
	"github.com/alfredjeanlab/calfeed/internal/presence"
)

// CalendarClient is the interface that calfeed CLI commands use to
// communicate with the server. It is implemented by HTTPClient.
type CalendarClient interface {
	// Users
	CreateUser(ctx context.Context, req *CreateUserRequest) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)

	// Events
	CreateEvent(ctx context.Context, req *CreateEventRequest) (*model.EventView, error)
	GetEvent(ctx context.Context, id int64) (*model.EventView, error)
	ListEvents(ctx context.Context, req *ListEventsRequest) ([]*model.EventView, error)
	UpdateEvent(ctx context.Context, id int64, req *UpdateEventRequest) (*model.EventView, error)
	DeleteEvent(ctx context.Context, id int64) error

	// Notifications
	Notify(ctx context.Context, req *NotifyRequest) (*NotifyResponse, error)

	// Change log
	ListChanges(ctx context.Context, after int64, limit int) (*ChangesPage, error)
	ListSessions(ctx context.Context) (*SessionsResponse, error)
	OpenStream(ctx context.Context, cursor int64) (*Stream, error)

	// Health
	Health(ctx context.Context) (*HealthResponse, error)

	// Lifecycle
	Close() error
}

// CreateUserRequest holds parameters for creating a user.
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Color string `json:"color,omitempty"`
}

// CreateEventRequest holds parameters for creating an event.
type CreateEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end,omitzero"`
	AllDay      bool      `json:"all_day,omitempty"`
	OwnerID     int64     `json:"owner_id"`
}

// UpdateEventRequest holds optional parameters for updating an event.
// Nil pointer fields mean "don't change".
type UpdateEventRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	AllDay      *bool      `json:"all_day,omitempty"`
	OwnerID     *int64     `json:"owner_id,omitempty"`
}

// ListEventsRequest holds parameters for listing events.
type ListEventsRequest struct {
	OwnerIDs []int64
	From     time.Time
	To       time.Time
	Limit    int
}

// NotifyRequest holds parameters for a broadcast notification. An empty
// Type is sent as "notification".
type NotifyRequest struct {
	Type     string            `json:"type,omitempty"`
	Message  string            `json:"message"`
	Severity string            `json:"severity,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NotifyResponse reports the appended record. ID is 0 when the server could
// not write it.
type NotifyResponse struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// ChangesPage is one non-streaming read of the change log.
type ChangesPage struct {
	Changes []*model.ChangeRecord `json:"changes"`
	Cursor  int64                 `json:"cursor"`
	Latest  int64                 `json:"latest"`
}

// SessionsResponse is the roster of open stream sessions.
type SessionsResponse struct {
	Sessions     []presence.Entry `json:"sessions"`
	LowestCursor *int64           `json:"lowest_cursor,omitempty"`
}

// HealthResponse is the response from Health.
type HealthResponse struct {
	Status   string `json:"status"`
	Latest   int64  `json:"latest"`
	Sessions int    `json:"sessions"`
}
