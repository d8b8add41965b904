package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/calfeed/internal/model"
)

var (
	_ Publisher  = (*Bus)(nil)
	_ Subscriber = (*Bus)(nil)
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
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

func dialBus(t *testing.T, url, origin string) *Bus {
	t.Helper()
	b, err := Dial(url, origin)
	if err != nil {
		t.Fatalf("Dial(%s): %v", origin, err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func receive(t *testing.T, ch <-chan Mirrored) Mirrored {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for announcement")
	}
	return Mirrored{}
}

func TestBus_PublishCarriesRecordAndHeaders(t *testing.T) {
	url := startTestNATS(t)
	writer := dialBus(t, url, "nd-writer")

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting raw subscriber: %v", err)
	}
	defer nc.Close()
	raw := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(Subject(model.ChangeUpdate), raw)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	rec := &model.ChangeRecord{
		ID:        42,
		EventType: model.ChangeUpdate,
		Payload:   json.RawMessage(`{"id":7,"title":"Standup"}`),
	}
	if err := writer.Publish(context.Background(), Subject(rec.EventType), ChangeAppended{Record: rec}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-raw:
		if got := msg.Header.Get(HeaderOrigin); got != "nd-writer" {
			t.Errorf("origin header = %q", got)
		}
		if got := msg.Header.Get(HeaderCursor); got != "42" {
			t.Errorf("cursor header = %q", got)
		}
		var body ChangeAppended
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if body.Record == nil || string(body.Record.Payload) != `{"id":7,"title":"Standup"}` {
			t.Errorf("record = %+v", body.Record)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestBus_FollowsOtherProcesses(t *testing.T) {
	url := startTestNATS(t)
	a := dialBus(t, url, "nd-a")
	b := dialBus(t, url, "nd-b")

	ch, cancel, err := b.Subscribe(AllChanges)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	for i, typ := range []string{model.ChangeCreate, model.ChangeDelete, "room.booked"} {
		rec := &model.ChangeRecord{ID: int64(10 + i), EventType: typ}
		if err := a.Publish(context.Background(), Subject(typ), ChangeAppended{Record: rec}); err != nil {
			t.Fatalf("Publish(%s): %v", typ, err)
		}
		m := receive(t, ch)
		if m.Subject != Subject(typ) || m.Origin != "nd-a" || m.Cursor != rec.ID {
			t.Errorf("announcement %d = %+v", i, m)
		}
	}
}

func TestBus_SkipsOwnAnnouncements(t *testing.T) {
	url := startTestNATS(t)
	self := dialBus(t, url, "nd-self")
	other := dialBus(t, url, "nd-other")

	ch, cancel, err := self.Subscribe(AllChanges)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	ctx := context.Background()
	own := ChangeAppended{Record: &model.ChangeRecord{ID: 1, EventType: model.ChangeCreate}}
	if err := self.Publish(ctx, Subject(model.ChangeCreate), own); err != nil {
		t.Fatalf("Publish own: %v", err)
	}
	theirs := ChangeAppended{Record: &model.ChangeRecord{ID: 2, EventType: model.ChangeCreate}}
	if err := other.Publish(ctx, Subject(model.ChangeCreate), theirs); err != nil {
		t.Fatalf("Publish other: %v", err)
	}

	// Ordering across connections is not guaranteed, but only the foreign
	// announcement may arrive.
	if m := receive(t, ch); m.Cursor != 2 {
		t.Fatalf("received %+v, want cursor 2", m)
	}
	select {
	case m := <-ch:
		t.Fatalf("unexpected announcement %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_ForeignPublisherWithoutHeaders(t *testing.T) {
	url := startTestNATS(t)
	b := dialBus(t, url, "nd-b")

	ch, cancel, err := b.Subscribe(AllChanges)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer nc.Close()
	if err := nc.Publish(Subject("note"), []byte(`{}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	m := receive(t, ch)
	if m.Origin != "" || m.Cursor != 0 || m.Subject != "calendar.change.note" {
		t.Fatalf("announcement = %+v", m)
	}
}

func TestBus_CancelClosesChannel(t *testing.T) {
	url := startTestNATS(t)
	b := dialBus(t, url, "nd-b")
	pub := dialBus(t, url, "nd-p")

	ch, cancel, err := b.Subscribe(AllChanges)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Cancelling while announcements are in flight must not panic.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 100 {
			rec := &model.ChangeRecord{ID: int64(i + 1), EventType: model.ChangeUpdate}
			_ = pub.Publish(context.Background(), Subject(rec.EventType), ChangeAppended{Record: rec})
		}
	}()
	cancel()
	cancel()
	<-done

	for range ch {
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	url := startTestNATS(t)
	b, err := Dial(url, "nd-gone")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Drain completes asynchronously; wait for the connection to close.
	deadline := time.Now().Add(2 * time.Second)
	for !b.conn.IsClosed() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := b.Publish(context.Background(), Subject(model.ChangeCreate), ChangeAppended{}); err == nil {
		t.Fatal("expected error publishing after close")
	}
}
