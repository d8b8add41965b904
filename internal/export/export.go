// Package export writes JSONL snapshots of the calendar to object storage or
// local files, on demand or on a schedule.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/model"
)

// Source is the part of the store a snapshot reads.
type Source interface {
	LatestChangeID(ctx context.Context) (int64, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.EventView, error)
}

// header is the first JSONL record written by ExportJSONL. Cursor is the
// highest change id when the snapshot began: a client that loads the
// snapshot and streams from Cursor misses nothing still in the log.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Cursor     int64     `json:"cursor"`
	UserCount  int       `json:"user_count"`
	EventCount int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes all users and events from s as JSONL to w. Users are
// ordered by id, events by start time.
func ExportJSONL(ctx context.Context, s Source, w io.Writer) error {
	// Read the cursor first; anything changed after it is replayed by the stream.
	cursor, err := s.LatestChangeID(ctx)
	if err != nil {
		return fmt.Errorf("latest change id: %w", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	events, err := s.ListEvents(ctx, model.EventFilter{})
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		Cursor:     cursor,
		UserCount:  len(users),
		EventCount: len(events),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, u := range users {
		if err := enc.Encode(record{Type: "user", Data: u}); err != nil {
			return fmt.Errorf("encode user %d: %w", u.ID, err)
		}
	}

	for _, e := range events {
		if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
			return fmt.Errorf("encode event %d: %w", e.ID, err)
		}
	}

	return nil
}
