// Package stream implements stream sessions: the per-connection loop that
// delivers change log records to one client.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/metrics"
	"github.com/alfredjeanlab/calfeed/internal/model"
	"github.com/alfredjeanlab/calfeed/internal/store"
)

// Defaults for Options fields left at zero.
const (
	DefaultPollInterval      = time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultMaxDuration       = 300 * time.Second
	DefaultBatchLimit        = 100
)

// Options configures a Session.
type Options struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	MaxDuration       time.Duration
	BatchLimit        int

	Clock  Clock
	Pruner *Pruner
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = DefaultMaxDuration
	}
	if o.BatchLimit <= 0 {
		o.BatchLimit = DefaultBatchLimit
	}
	if o.Clock == nil {
		o.Clock = RealClock
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Session is the state of one client's stream. The methods Open, Poll,
// Expired and Close advance the state machine without touching a transport
// or sleeping; Run drives them against an Emitter.
//
// A Session is not safe for concurrent use.
type Session struct {
	id   string
	log  store.ChangeLog
	opts Options

	cursor          int64
	openedAt        time.Time
	lastHeartbeatAt time.Time
	lastBatchFull   bool
}

// NewSession creates a session that resumes after cursor.
func NewSession(id string, log store.ChangeLog, cursor int64, opts Options) *Session {
	if cursor < 0 {
		cursor = 0
	}
	return &Session{
		id:     id,
		log:    log,
		opts:   opts.withDefaults(),
		cursor: cursor,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Cursor returns the id of the last record delivered.
func (s *Session) Cursor() int64 { return s.cursor }

// OpenedAt returns the time Open was called.
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// Open starts the session clock and returns the initial heartbeat.
func (s *Session) Open() Frame {
	now := s.opts.Clock.Now()
	s.openedAt = now
	s.lastHeartbeatAt = now
	return heartbeatFrame(s.cursor, now)
}

// Expired reports whether the session has reached its duration ceiling.
func (s *Session) Expired() bool {
	return s.opts.Clock.Now().Sub(s.openedAt) >= s.opts.MaxDuration
}

// Poll reads the next batch of records after the cursor, advances the cursor
// past them, gives the pruner a chance to run and appends a heartbeat when one
// is due. Records come first and in ascending id order.
func (s *Session) Poll(ctx context.Context) ([]Frame, error) {
	timer := metrics.NewTimer()
	recs, err := s.log.ChangesSince(ctx, s.cursor, s.opts.BatchLimit)
	timer.ObserveDuration(metrics.PollDuration)
	if err != nil {
		return nil, err
	}

	frames := make([]Frame, 0, len(recs)+1)
	for _, rec := range recs {
		// ChangesSince returns ascending ids above the cursor; anything else
		// would break per-session ordering, so it is skipped.
		if rec.ID <= s.cursor {
			continue
		}
		frames = append(frames, recordFrame(rec))
		s.cursor = rec.ID
	}
	s.lastBatchFull = len(recs) >= s.opts.BatchLimit

	s.opts.Pruner.MaybeTrim(ctx)

	now := s.opts.Clock.Now()
	if now.Sub(s.lastHeartbeatAt) >= s.opts.HeartbeatInterval {
		frames = append(frames, heartbeatFrame(s.cursor, now))
		s.lastHeartbeatAt = now
	}
	return frames, nil
}

// Close returns the final frame of the session: timeout when err is nil,
// error otherwise. Both carry the cursor to resume from.
func (s *Session) Close(err error) Frame {
	if err != nil {
		return sessionFrame(model.FrameError, model.SessionFrame{Cursor: s.cursor, Error: err.Error()})
	}
	return sessionFrame(model.FrameTimeout, model.SessionFrame{Cursor: s.cursor, Reconnect: true})
}

// Run drives the session until it expires, the client goes away or a read
// fails, and returns the reason it ended. wake may be nil; a signal on it
// makes the session poll before the interval elapses.
//
// On expiry a timeout frame is emitted, on a read failure an error frame.
// When ctx is cancelled or the emitter fails, Run returns without emitting
// anything more.
func (s *Session) Run(ctx context.Context, emit Emitter, wake <-chan struct{}) (string, error) {
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	reason, err := s.run(ctx, emit, wake)
	metrics.SessionsEnded.WithLabelValues(reason).Inc()
	return reason, err
}

func (s *Session) run(ctx context.Context, emit Emitter, wake <-chan struct{}) (string, error) {
	logger := s.opts.Logger.With("session_id", s.id)

	if err := s.emit(emit, s.Open()); err != nil {
		return metrics.ReasonDisconnect, nil
	}

	for {
		if ctx.Err() != nil {
			return metrics.ReasonDisconnect, nil
		}
		if s.Expired() {
			_ = s.emit(emit, s.Close(nil))
			return metrics.ReasonTimeout, nil
		}

		frames, err := s.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return metrics.ReasonDisconnect, nil
			}
			logger.Warn("change log read failed", "cursor", s.cursor, "error", err)
			_ = s.emit(emit, s.Close(err))
			return metrics.ReasonError, err
		}
		for _, f := range frames {
			if err := s.emit(emit, f); err != nil {
				return metrics.ReasonDisconnect, nil
			}
		}

		if s.lastBatchFull {
			// More backlog is waiting; read it without sleeping.
			continue
		}

		wait := s.opts.PollInterval
		if left := s.opts.MaxDuration - s.opts.Clock.Now().Sub(s.openedAt); left < wait {
			wait = left
		}
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return metrics.ReasonDisconnect, nil
		case <-s.opts.Clock.After(wait):
		case <-wake:
		}
	}
}

func (s *Session) emit(emit Emitter, f Frame) error {
	if err := emit.Emit(f); err != nil {
		return err
	}
	if f.IsRecord() {
		metrics.RecordsDelivered.Inc()
	} else if f.Event == model.FrameHeartbeat {
		metrics.HeartbeatsSent.Inc()
	}
	return nil
}
