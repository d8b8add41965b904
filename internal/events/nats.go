package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// mirrorBuffer bounds announcements queued per subscription. Consumers only
// need to learn that something changed, so overflow is dropped.
const mirrorBuffer = 64

// Bus is a single NATS connection used to both publish and follow change
// announcements. Announcements carrying the bus's own origin are filtered out
// on receipt, since the local process already woke its sessions.
type Bus struct {
	conn   *nats.Conn
	origin string
}

// Dial connects to NATS, reconnecting forever. origin identifies this
// process on outgoing announcements. Extra options (disconnect or reconnect
// handlers, for instance) are applied after the defaults.
func Dial(url, origin string, opts ...nats.Option) (*Bus, error) {
	all := append([]nats.Option{
		nats.Name("calfeed/" + origin),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}, opts...)
	nc, err := nats.Connect(url, all...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &Bus{conn: nc, origin: origin}, nil
}

// Origin returns the identifier stamped on this bus's announcements.
func (b *Bus) Origin() string { return b.origin }

// Publish sends event as JSON on topic. A ChangeAppended event also carries
// the record id in the cursor header.
func (b *Bus) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s announcement: %w", topic, err)
	}
	msg := nats.NewMsg(topic)
	msg.Data = data
	msg.Header.Set(HeaderOrigin, b.origin)
	if ev, ok := event.(ChangeAppended); ok && ev.Record != nil {
		msg.Header.Set(HeaderCursor, strconv.FormatInt(ev.Record.ID, 10))
	}
	return b.conn.PublishMsg(msg)
}

// Subscribe follows topic, which may use wildcards such as AllChanges.
// The subscription is registered on the server before Subscribe returns.
func (b *Bus) Subscribe(topic string) (<-chan Mirrored, func(), error) {
	m := &mirror{ch: make(chan Mirrored, mirrorBuffer), self: b.origin}
	sub, err := b.conn.Subscribe(topic, m.deliver)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("registering %s subscription: %w", topic, err)
	}
	m.sub = sub
	return m.ch, m.stop, nil
}

// Close drains pending publishes and closes the connection.
func (b *Bus) Close() error {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}

// mirror adapts one NATS subscription to a channel of Mirrored values.
type mirror struct {
	sub  *nats.Subscription
	self string

	mu     sync.Mutex
	ch     chan Mirrored
	closed bool
}

func (m *mirror) deliver(msg *nats.Msg) {
	got := Mirrored{Subject: msg.Subject}
	if msg.Header != nil {
		got.Origin = msg.Header.Get(HeaderOrigin)
		got.Cursor, _ = strconv.ParseInt(msg.Header.Get(HeaderCursor), 10, 64)
	}
	if got.Origin != "" && got.Origin == m.self {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.ch <- got:
	default:
	}
}

func (m *mirror) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	_ = m.sub.Unsubscribe()
	close(m.ch)
}
