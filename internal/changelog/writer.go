// Package changelog produces change log records for calendar mutations.
package changelog

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alfredjeanlab/calfeed/internal/events"
	"github.com/alfredjeanlab/calfeed/internal/metrics"
	"github.com/alfredjeanlab/calfeed/internal/model"
	"github.com/alfredjeanlab/calfeed/internal/store"
)

// Resolver computes the denormalized payload of a change record. It runs once,
// when the record is appended.
type Resolver func(ctx context.Context) (any, error)

// Static returns a Resolver for a payload that is already known.
func Static(v any) Resolver {
	return func(context.Context) (any, error) { return v, nil }
}

// Writer appends one change record per mutation, mirrors it on the event bus
// and wakes local stream sessions. Every step is best-effort: the mutation
// that triggered the record has already been committed.
type Writer struct {
	log       store.ChangeLog
	publisher events.Publisher
	notifier  *Notifier
	logger    *slog.Logger
}

// NewWriter creates a Writer. A nil publisher, notifier or logger is allowed.
func NewWriter(log store.ChangeLog, publisher events.Publisher, notifier *Notifier, logger *slog.Logger) *Writer {
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{log: log, publisher: publisher, notifier: notifier, logger: logger}
}

// Record appends a record of the given type and returns its id, or 0 if the
// record could not be written. Failures are logged and swallowed.
func (w *Writer) Record(ctx context.Context, eventType string, resolve Resolver) int64 {
	var payload json.RawMessage
	if resolve != nil {
		v, err := resolve(ctx)
		if err != nil {
			w.logger.Warn("failed to resolve change payload", "event_type", eventType, "error", err)
			metrics.ChangesAppended.WithLabelValues(metrics.Result(err)).Inc()
			return 0
		}
		data, err := json.Marshal(v)
		if err != nil {
			w.logger.Warn("failed to marshal change payload", "event_type", eventType, "error", err)
			metrics.ChangesAppended.WithLabelValues(metrics.Result(err)).Inc()
			return 0
		}
		payload = data
	}

	rec := &model.ChangeRecord{EventType: eventType, Payload: payload}
	err := w.log.AppendChange(ctx, rec)
	metrics.ChangesAppended.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		w.logger.Warn("failed to append change", "event_type", eventType, "error", err)
		return 0
	}

	if err := w.publisher.Publish(ctx, events.Subject(eventType), events.ChangeAppended{Record: rec}); err != nil {
		w.logger.Warn("failed to publish change", "event_type", eventType, "id", rec.ID, "error", err)
	}
	if w.notifier != nil {
		w.notifier.Notify()
	}
	return rec.ID
}
