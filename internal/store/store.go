package store

import (
	"context"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/model"
)

// ChangeLog is the append-only, ID-ordered log that stream sessions poll.
// Every method is safe to call concurrently; the backing store's atomic
// sequence provides ordering, no application-level locking is involved.
type ChangeLog interface {
	// AppendChange inserts rec and fills in its ID and CreatedAt. A non-zero
	// rec.CreatedAt is kept as given.
	AppendChange(ctx context.Context, rec *model.ChangeRecord) error
	// ChangesSince returns records with ID > lastID in ascending ID order,
	// at most limit of them.
	ChangesSince(ctx context.Context, lastID int64, limit int) ([]*model.ChangeRecord, error)
	// TrimChanges deletes records outside policy, evaluated against now, and
	// returns how many were removed. Calling it with nothing to remove is a no-op.
	TrimChanges(ctx context.Context, policy model.RetentionPolicy, now time.Time) (int64, error)
	// LatestChangeID returns the highest ID currently in the log, 0 when empty.
	LatestChangeID(ctx context.Context) (int64, error)
}

// Store defines the persistence interface for calfeed.
type Store interface {
	ChangeLog

	// Users
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)

	// Events
	CreateEvent(ctx context.Context, event *model.Event) error
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	GetEventView(ctx context.Context, id int64) (*model.EventView, error)
	ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.EventView, error)
	UpdateEvent(ctx context.Context, event *model.Event) error
	DeleteEvent(ctx context.Context, id int64) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
