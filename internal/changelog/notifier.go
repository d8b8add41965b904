package changelog

import (
	"context"
	"fmt"
	"sync"

	"github.com/alfredjeanlab/calfeed/internal/events"
)

// Notifier fans out "the log has grown" signals to waiting stream sessions.
// A signal carries no data. Each subscriber channel holds at most one pending
// signal, so a burst of appends collapses into a single wake.
type Notifier struct {
	mu   sync.RWMutex
	subs map[chan struct{}]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[chan struct{}]struct{})}
}

// Subscribe registers a waiter. Call the returned cancel function when done.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, ch)
			n.mu.Unlock()
		})
	}
}

// Notify wakes every subscriber. It never blocks.
func (n *Notifier) Notify() {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
			// A wake is already pending.
		}
	}
}

// Len returns the number of registered subscribers.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Follow turns change records mirrored on the event bus by other processes
// into local wakes. It blocks until ctx is done or the subscription closes.
func (n *Notifier) Follow(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.AllChanges)
	if err != nil {
		return fmt.Errorf("following change subjects: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			n.Notify()
		}
	}
}
