package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/model"
)

// State is the connection status of a StreamClient.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// StreamOpener opens a change stream resuming after cursor.
type StreamOpener interface {
	OpenStream(ctx context.Context, cursor int64) (*Stream, error)
}

// StreamOptions configures a StreamClient.
type StreamOptions struct {
	Backoff Backoff

	// OnRecord receives every change record, in id order. It runs on the
	// Run goroutine and must not block for long.
	OnRecord func(*model.ChangeRecord)

	// OnState is called on every state transition.
	OnState func(State)

	Logger *slog.Logger

	// After is the timer used for backoff waits. Default: time.After.
	After func(time.Duration) <-chan time.Time
}

// StreamClient keeps one logical change stream available for as long as Run
// is running. Planned rotations reconnect immediately; errors and transport
// failures reconnect with exponential backoff. The cursor only moves forward,
// so every reconnect resumes after the furthest record seen.
type StreamClient struct {
	opener StreamOpener
	opts   StreamOptions
	nudge  chan struct{}

	mu        sync.Mutex
	state     State
	cursor    int64
	attempts  int
	sessionID string
}

// NewStreamClient creates a client that resumes after cursor.
func NewStreamClient(opener StreamOpener, cursor int64, opts StreamOptions) *StreamClient {
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.After == nil {
		opts.After = time.After
	}
	return &StreamClient{
		opener: opener,
		opts:   opts,
		nudge:  make(chan struct{}, 1),
		state:  StateDisconnected,
		cursor: max(cursor, 0),
	}
}

// State returns the current connection state.
func (c *StreamClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cursor returns the id of the furthest record or session frame seen.
func (c *StreamClient) Cursor() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Attempts returns the number of consecutive failed connections.
func (c *StreamClient) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// NextDelay returns the wait the client applies before its next reconnect
// if it fails now. It is Backoff.Base right after a successful open.
func (c *StreamClient) NextDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.Backoff.Delay(c.attempts)
}

// SessionID returns the server session id of the current or last stream.
func (c *StreamClient) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Nudge asks the client to reconnect now if it is not connected, cutting a
// pending backoff wait short. Call it when the client becomes visible again
// after being suspended.
func (c *StreamClient) Nudge() {
	if c.State() == StateConnected {
		return
	}
	select {
	case c.nudge <- struct{}{}:
	default:
	}
}

// sessionEnd is why one connection ended.
type sessionEnd int

const (
	endRotate    sessionEnd = iota // timeout frame: reconnect now
	endError                       // error frame
	endTransport                   // open failed or stream broke
	endCancelled                   // ctx done
)

// Run connects and reconnects until ctx is cancelled. It returns ctx.Err().
func (c *StreamClient) Run(ctx context.Context) error {
	logger := c.opts.Logger
	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}

		c.setState(StateConnecting)
		switch c.connect(ctx) {
		case endRotate:
			continue
		case endCancelled:
			c.setState(StateDisconnected)
			return ctx.Err()
		}

		c.setState(StateDisconnected)
		c.mu.Lock()
		c.attempts++
		attempts := c.attempts
		delay := c.opts.Backoff.Delay(attempts)
		c.mu.Unlock()
		logger.Info("stream reconnect scheduled", "attempts", attempts, "delay", delay, "cursor", c.Cursor())

		// Drop a nudge that arrived while connected or connecting.
		select {
		case <-c.nudge:
		default:
		}
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-c.opts.After(delay):
		case <-c.nudge:
			logger.Debug("stream reconnect nudged", "attempts", attempts)
		}
	}
}

// connect runs one connection to completion.
func (c *StreamClient) connect(ctx context.Context) sessionEnd {
	logger := c.opts.Logger
	cursor := c.Cursor()

	stream, err := c.opener.OpenStream(ctx, cursor)
	if err != nil {
		if ctx.Err() != nil {
			return endCancelled
		}
		logger.Warn("stream open failed", "cursor", cursor, "error", err)
		return endTransport
	}
	defer stream.Close()

	c.mu.Lock()
	c.attempts = 0
	c.sessionID = stream.SessionID
	c.mu.Unlock()
	c.setState(StateConnected)

	for {
		f, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return endCancelled
			}
			if !errors.Is(err, io.EOF) {
				logger.Warn("stream read failed", "cursor", c.Cursor(), "error", err)
			} else {
				logger.Warn("stream closed without timeout frame", "cursor", c.Cursor())
			}
			return endTransport
		}
		prev := c.Cursor()
		if f.HasID {
			c.advance(f.ID)
		}

		switch f.Event {
		case model.FrameHeartbeat:
		case model.FrameTimeout:
			return endRotate
		case model.FrameError:
			var p model.SessionFrame
			_ = json.Unmarshal(f.Data, &p)
			logger.Warn("stream session reported error", "cursor", c.Cursor(), "error", p.Error)
			return endError
		default:
			if f.HasID && f.ID <= prev {
				// Already applied before a reconnect.
				continue
			}
			if c.opts.OnRecord != nil {
				c.opts.OnRecord(&model.ChangeRecord{
					ID:        f.ID,
					EventType: f.Event,
					Payload:   json.RawMessage(f.Data),
				})
			}
		}
	}
}

func (c *StreamClient) advance(id int64) {
	c.mu.Lock()
	if id > c.cursor {
		c.cursor = id
	}
	c.mu.Unlock()
}

func (c *StreamClient) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}
