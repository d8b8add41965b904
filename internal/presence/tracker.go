// Package presence tracks open stream sessions for the session roster.
//
// The server registers a session when a client connects to the change
// stream, advances its cursor as frames are written and removes it when the
// handler returns. A background reaper drops entries whose handler never
// reported back, so a crashed handler cannot pin the roster forever.
//
// The roster is informational. Retention does not consult it: a slow
// session can still have records pruned from under it.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Entry is a snapshot of one stream session.
type Entry struct {
	SessionID           string    `json:"session_id"`
	ClientID            string    `json:"client_id,omitempty"`
	RemoteAddr          string    `json:"remote_addr,omitempty"`
	UserAgent           string    `json:"user_agent,omitempty"`
	Cursor              int64     `json:"cursor"`
	ResumedFrom         int64     `json:"resumed_from"`
	OpenedAt            time.Time `json:"opened_at"`
	LastSeen            time.Time `json:"last_seen"`
	FramesSent          int64     `json:"frames_sent"`
	IdleSecs            float64   `json:"idle_secs"`
	SessionDurationSecs float64   `json:"session_duration_secs"`
}

// SessionInfo describes a session when it opens.
type SessionInfo struct {
	SessionID  string
	ClientID   string
	RemoteAddr string
	UserAgent  string
	Cursor     int64
}

// ReaperConfig configures the background stale-session reaper.
type ReaperConfig struct {
	// DeadThreshold is how long a session may go without activity before it
	// is dropped. It must exceed the heartbeat interval. Default: 2 minutes.
	DeadThreshold time.Duration

	// SweepInterval is how often the reaper scans. Default: 30 seconds.
	SweepInterval time.Duration

	// OnDead is called for each dropped session, outside the lock.
	OnDead func(sessionID string)
}

// Tracker maintains an in-memory roster of open stream sessions.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	now      func() time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type sessionState struct {
	clientID    string
	remoteAddr  string
	userAgent   string
	resumedFrom int64
	cursor      int64
	openedAt    time.Time
	lastSeen    time.Time
	framesSent  int64
}

// New creates a new presence tracker.
func New() *Tracker {
	return &Tracker{
		sessions: make(map[string]*sessionState),
		now:      time.Now,
	}
}

// Open registers a session.
func (t *Tracker) Open(info SessionInfo) {
	if info.SessionID == "" {
		return
	}
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[info.SessionID] = &sessionState{
		clientID:    info.ClientID,
		remoteAddr:  info.RemoteAddr,
		userAgent:   info.UserAgent,
		resumedFrom: info.Cursor,
		cursor:      info.Cursor,
		openedAt:    now,
		lastSeen:    now,
	}
}

// Advance records that a frame was written to the session. The cursor never
// moves backwards.
func (t *Tracker) Advance(sessionID string, cursor int64) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.sessions[sessionID]
	if !ok {
		return
	}
	state.lastSeen = now
	state.framesSent++
	if cursor > state.cursor {
		state.cursor = cursor
	}
}

// Close removes a session.
func (t *Tracker) Close(sessionID string) {
	t.mu.Lock()
	delete(t.sessions, sessionID)
	t.mu.Unlock()
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// LowestCursor returns the smallest cursor among tracked sessions. ok is
// false when no session is open.
func (t *Tracker) LowestCursor() (cursor int64, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, state := range t.sessions {
		if !ok || state.cursor < cursor {
			cursor = state.cursor
			ok = true
		}
	}
	return cursor, ok
}

// Roster returns a snapshot of all tracked sessions, oldest first.
func (t *Tracker) Roster() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	entries := make([]Entry, 0, len(t.sessions))
	for id, state := range t.sessions {
		entries = append(entries, Entry{
			SessionID:           id,
			ClientID:            state.clientID,
			RemoteAddr:          state.remoteAddr,
			UserAgent:           state.userAgent,
			Cursor:              state.cursor,
			ResumedFrom:         state.resumedFrom,
			OpenedAt:            state.openedAt,
			LastSeen:            state.lastSeen,
			FramesSent:          state.framesSent,
			IdleSecs:            now.Sub(state.lastSeen).Seconds(),
			SessionDurationSecs: now.Sub(state.openedAt).Seconds(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].OpenedAt.Equal(entries[j].OpenedAt) {
			return entries[i].SessionID < entries[j].SessionID
		}
		return entries[i].OpenedAt.Before(entries[j].OpenedAt)
	})
	return entries
}

// StartReaper launches a background goroutine that drops stale sessions.
// Call Stop() to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.DeadThreshold == 0 {
		cfg.DeadThreshold = 2 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 30 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"dead_threshold", cfg.DeadThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := t.now()
	var dead []string

	t.mu.Lock()
	for id, state := range t.sessions {
		if now.Sub(state.lastSeen) > cfg.DeadThreshold {
			delete(t.sessions, id)
			dead = append(dead, id)
		}
	}
	t.mu.Unlock()

	for _, id := range dead {
		slog.Info("presence: reaper dropped stale session",
			"session_id", id,
			"threshold", cfg.DeadThreshold)
		if cfg.OnDead != nil {
			cfg.OnDead(id)
		}
	}
}
