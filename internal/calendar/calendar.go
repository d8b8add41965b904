// Package calendar holds the client-side view of a calendar and applies
// change records to it.
package calendar

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/alfredjeanlab/calfeed/internal/model"
)

// maxNotices bounds the notices kept by a Calendar.
const maxNotices = 20

// Notice is a broadcast notification received on the stream.
type Notice struct {
	ID   int64
	Type string
	model.Notification
}

// Calendar is the set of events a client shows, restricted to the owners
// it currently has visible. It is safe for concurrent use.
type Calendar struct {
	mu      sync.RWMutex
	events  map[int64]*model.EventView
	visible map[int64]bool // empty: every owner is visible
	notices []Notice

	// OnUsersChanged is called when a user is created elsewhere; the client
	// refetches its user list rather than patching it.
	OnUsersChanged func()

	// OnNotice is called for each broadcast notification.
	OnNotice func(Notice)
}

// New returns an empty calendar showing the given owners, or every owner
// when none are given.
func New(visibleOwners ...int64) *Calendar {
	c := &Calendar{events: make(map[int64]*model.EventView)}
	c.SetVisible(visibleOwners)
	return c
}

// SetVisible replaces the visible owner filter and drops events of owners
// that are no longer visible.
func (c *Calendar) SetVisible(owners []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = make(map[int64]bool, len(owners))
	for _, id := range owners {
		c.visible[id] = true
	}
	for id, e := range c.events {
		if !c.isVisible(e.OwnerID) {
			delete(c.events, id)
		}
	}
}

// Load replaces the calendar contents with a baseline read.
func (c *Calendar) Load(views []*model.EventView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = make(map[int64]*model.EventView, len(views))
	for _, v := range views {
		if c.isVisible(v.OwnerID) {
			c.events[v.ID] = v
		}
	}
}

// Apply updates the calendar with one change record. Session frames and
// create or update payloads without an event id are ignored. An error means
// the payload could not be decoded; the calendar is left unchanged.
func (c *Calendar) Apply(rec *model.ChangeRecord) error {
	switch rec.EventType {
	case model.ChangeCreate:
		var v model.EventView
		if err := json.Unmarshal(rec.Payload, &v); err != nil {
			return fmt.Errorf("decode create %d: %w", rec.ID, err)
		}
		if v.ID <= 0 {
			return nil
		}
		c.mu.Lock()
		if c.isVisible(v.OwnerID) {
			c.events[v.ID] = &v
		}
		c.mu.Unlock()

	case model.ChangeUpdate:
		var v model.EventView
		if err := json.Unmarshal(rec.Payload, &v); err != nil {
			return fmt.Errorf("decode update %d: %w", rec.ID, err)
		}
		if v.ID <= 0 {
			return nil
		}
		// An update can move an event to or from a hidden owner.
		c.mu.Lock()
		if c.isVisible(v.OwnerID) {
			c.events[v.ID] = &v
		} else {
			delete(c.events, v.ID)
		}
		c.mu.Unlock()

	case model.ChangeDelete:
		var ref model.EventRef
		if err := json.Unmarshal(rec.Payload, &ref); err != nil {
			return fmt.Errorf("decode delete %d: %w", rec.ID, err)
		}
		c.mu.Lock()
		delete(c.events, ref.ID)
		c.mu.Unlock()

	case model.ChangeUserCreated:
		if c.OnUsersChanged != nil {
			c.OnUsersChanged()
		}

	case model.FrameHeartbeat, model.FrameTimeout, model.FrameError:

	default:
		var n model.Notification
		if err := json.Unmarshal(rec.Payload, &n); err != nil {
			return fmt.Errorf("decode %s %d: %w", rec.EventType, rec.ID, err)
		}
		notice := Notice{ID: rec.ID, Type: rec.EventType, Notification: n}
		c.mu.Lock()
		c.notices = append(c.notices, notice)
		if len(c.notices) > maxNotices {
			c.notices = c.notices[len(c.notices)-maxNotices:]
		}
		c.mu.Unlock()
		if c.OnNotice != nil {
			c.OnNotice(notice)
		}
	}
	return nil
}

// Get returns the event with the given id.
func (c *Calendar) Get(id int64) (*model.EventView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.events[id]
	return v, ok
}

// Len returns the number of events shown.
func (c *Calendar) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Events returns the events shown, ordered by start time then id.
func (c *Calendar) Events() []*model.EventView {
	c.mu.RLock()
	out := make([]*model.EventView, 0, len(c.events))
	for _, v := range c.events {
		out = append(out, v)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartAt.Before(out[j].StartAt)
	})
	return out
}

// Notices returns the most recent notices, oldest first.
func (c *Calendar) Notices() []Notice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Notice(nil), c.notices...)
}

// isVisible must be called with mu held.
func (c *Calendar) isVisible(owner int64) bool {
	return len(c.visible) == 0 || c.visible[owner]
}
