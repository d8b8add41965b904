// Package memory implements store.Store in process memory. It backs
// `calfeed serve --memory` and serves as the fake store in tests.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/model"
	"github.com/alfredjeanlab/calfeed/internal/store"
)

// Store is a mutex-guarded in-memory store. Sequences behave like database
// serial columns: they only ever move forward, even after deletes.
type Store struct {
	mu sync.RWMutex

	changes   []*model.ChangeRecord // ascending by ID
	changeSeq int64

	users   map[int64]*model.User
	userSeq int64

	events   map[int64]*model.Event
	eventSeq int64

	now func() time.Time
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:  make(map[int64]*model.User),
		events: make(map[int64]*model.Event),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) AppendChange(_ context.Context, rec *model.ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.changeSeq++
	rec.ID = s.changeSeq
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	cp := *rec
	s.changes = append(s.changes, &cp)
	return nil
}

func (s *Store) ChangesSince(_ context.Context, lastID int64, limit int) ([]*model.ChangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.changes), func(i int) bool { return s.changes[i].ID > lastID })
	var out []*model.ChangeRecord
	for ; i < len(s.changes); i++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *s.changes[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) LatestChangeID(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.changes) == 0 {
		return 0, nil
	}
	return s.changes[len(s.changes)-1].ID, nil
}

func (s *Store) TrimChanges(_ context.Context, policy model.RetentionPolicy, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff, byAge := policy.Cutoff(now)
	// Records at index < keepFrom fall outside the keep-last window.
	keepFrom := 0
	if policy.KeepLast > 0 && int64(len(s.changes)) > policy.KeepLast {
		keepFrom = len(s.changes) - int(policy.KeepLast)
	}

	kept := s.changes[:0]
	var removed int64
	for i, rec := range s.changes {
		if i < keepFrom || (byAge && rec.CreatedAt.Before(cutoff)) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	// Clear the tail so trimmed records can be collected.
	for i := len(kept); i < len(s.changes); i++ {
		s.changes[i] = nil
	}
	s.changes = kept
	return removed, nil
}

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userSeq++
	user.ID = s.userSeq
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (s *Store) ListUsers(_ context.Context) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateEvent(_ context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[event.OwnerID]; !ok {
		return sql.ErrNoRows
	}
	s.eventSeq++
	event.ID = s.eventSeq
	now := s.now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = event.CreatedAt
	cp := *event
	s.events[event.ID] = &cp
	return nil
}

func (s *Store) GetEvent(_ context.Context, id int64) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (s *Store) GetEventView(_ context.Context, id int64) (*model.EventView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.viewLocked(e), nil
}

func (s *Store) ListEvents(_ context.Context, filter model.EventFilter) ([]*model.EventView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make(map[int64]bool, len(filter.OwnerIDs))
	for _, id := range filter.OwnerIDs {
		owners[id] = true
	}

	var out []*model.EventView
	for _, e := range s.events {
		if len(owners) > 0 && !owners[e.OwnerID] {
			continue
		}
		if !filter.From.IsZero() && eventEnd(e).Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !e.StartAt.Before(filter.To) {
			continue
		}
		out = append(out, s.viewLocked(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateEvent(_ context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.events[event.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if _, ok := s.users[event.OwnerID]; !ok {
		return sql.ErrNoRows
	}
	event.CreatedAt = prev.CreatedAt
	event.UpdatedAt = s.now()
	cp := *event
	s.events[event.ID] = &cp
	return nil
}

func (s *Store) DeleteEvent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.events, id)
	return nil
}

// RunInTransaction calls fn with the store itself. Individual operations are
// atomic; the sequence as a whole is not isolated from concurrent callers.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Len returns the number of records currently in the change log.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.changes)
}

func (s *Store) viewLocked(e *model.Event) *model.EventView {
	v := &model.EventView{Event: *e}
	if u, ok := s.users[e.OwnerID]; ok {
		v.OwnerName = u.Name
		v.OwnerColor = u.Color
	}
	return v
}

func eventEnd(e *model.Event) time.Time {
	if e.EndAt.IsZero() {
		return e.StartAt
	}
	return e.EndAt
}
