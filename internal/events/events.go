// Package events mirrors appended change records onto a NATS subject tree so
// that every calfeed process sharing a database wakes its stream sessions,
// not just the process that performed the write.
package events

import (
	"context"
	"strings"

	"github.com/alfredjeanlab/calfeed/internal/model"
)

// SubjectPrefix is the NATS subject namespace for mirrored change records.
// A record with event type "create" is published on "calendar.change.create".
const SubjectPrefix = "calendar.change."

// AllChanges matches every mirrored change record.
const AllChanges = SubjectPrefix + ">"

// Message headers set on every mirrored record.
const (
	HeaderOrigin = "Calfeed-Origin"
	HeaderCursor = "Calfeed-Cursor"
)

// Subject returns the subject a record of the given event type is published
// on. Notification types are free-form, so characters that NATS treats as
// separators or wildcards are replaced.
func Subject(eventType string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, eventType)
	if clean == "" {
		clean = "_"
	}
	return SubjectPrefix + clean
}

// ChangeAppended is the message body published after a record is appended.
// It carries the full record so external consumers need not read the log.
type ChangeAppended struct {
	Record *model.ChangeRecord `json:"record"`
}

// Mirrored is one change announcement received from the bus.
type Mirrored struct {
	Subject string
	Origin  string // process that appended the record; empty for foreign publishers
	Cursor  int64  // record id, 0 when the publisher sent no cursor header
}

// Publisher emits change announcements.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives change announcements. The channel returned by
// Subscribe is closed once the returned cancel function runs.
type Subscriber interface {
	Subscribe(topic string) (<-chan Mirrored, func(), error)
	Close() error
}

// NoopPublisher drops everything. Used when no NATS URL is configured.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }
