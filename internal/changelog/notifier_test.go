package changelog

import (
	"context"
	"testing"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/events"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func TestNotifier_CoalescesSignals(t *testing.T) {
	n := NewNotifier()
	ch, cancel := n.Subscribe()
	defer cancel()

	for range 5 {
		n.Notify()
	}

	select {
	case <-ch:
	default:
		t.Fatal("expected a pending wake")
	}
	select {
	case <-ch:
		t.Fatal("expected signals to be coalesced into one")
	default:
	}
}

func TestNotifier_CancelUnregisters(t *testing.T) {
	n := NewNotifier()
	_, cancel := n.Subscribe()
	_, cancel2 := n.Subscribe()
	defer cancel2()

	if n.Len() != 2 {
		t.Fatalf("Len = %d, want 2", n.Len())
	}
	cancel()
	cancel()
	if n.Len() != 1 {
		t.Fatalf("Len = %d after cancel, want 1", n.Len())
	}
}

func TestNotifier_NotifyWithoutSubscribers(t *testing.T) {
	// Must not block or panic.
	NewNotifier().Notify()
}

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNotifier_FollowWakesOnRemoteAppend(t *testing.T) {
	url := startTestNATS(t)

	sub, err := events.Dial(url, "nd-follower")
	if err != nil {
		t.Fatalf("dialing bus: %v", err)
	}
	defer sub.Close()

	n := NewNotifier()
	wake, cancel := n.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Follow(ctx, sub) }()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting publisher: %v", err)
	}
	defer nc.Close()

	// The subscription is registered asynchronously; keep publishing until
	// the wake arrives.
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
loop:
	for {
		select {
		case <-wake:
			break loop
		case <-tick.C:
			_ = nc.Publish(events.Subject("create"), []byte(`{"record":{"id":1}}`))
		case <-deadline:
			t.Fatal("timed out waiting for wake from NATS")
		}
	}

	stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}
