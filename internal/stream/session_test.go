package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/metrics"
	"github.com/alfredjeanlab/calfeed/internal/model"
	"github.com/alfredjeanlab/calfeed/internal/store"
	"github.com/alfredjeanlab/calfeed/internal/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func appendRecord(t *testing.T, log store.ChangeLog, eventType, payload string) int64 {
	t.Helper()
	rec := &model.ChangeRecord{EventType: eventType, Payload: json.RawMessage(payload)}
	if err := log.AppendChange(context.Background(), rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	return rec.ID
}

// flakyLog fails ChangesSince while failing is set.
type flakyLog struct {
	*memory.Store
	mu      sync.Mutex
	failing error
}

func (f *flakyLog) setFailing(err error) {
	f.mu.Lock()
	f.failing = err
	f.mu.Unlock()
}

func (f *flakyLog) ChangesSince(ctx context.Context, lastID int64, limit int) ([]*model.ChangeRecord, error) {
	f.mu.Lock()
	err := f.failing
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.ChangesSince(ctx, lastID, limit)
}

// collector is an Emitter that records frames and can be made to fail.
type collector struct {
	mu     sync.Mutex
	frames []Frame
	failAt int // fail on the n-th emit (1-based); 0 never fails
	notify chan Frame
}

func newCollector() *collector {
	return &collector{notify: make(chan Frame, 256)}
}

func (c *collector) Emit(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt > 0 && len(c.frames)+1 >= c.failAt {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, f)
	select {
	case c.notify <- f:
	default:
	}
	return nil
}

func (c *collector) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

func (c *collector) next(t *testing.T, timeout time.Duration) Frame {
	t.Helper()
	select {
	case f := <-c.notify:
		return f
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for a frame")
		return Frame{}
	}
}

func decodeSessionFrame(t *testing.T, f Frame) model.SessionFrame {
	t.Helper()
	var p model.SessionFrame
	if err := json.Unmarshal(f.Data, &p); err != nil {
		t.Fatalf("decode %s frame: %v", f.Event, err)
	}
	return p
}

func TestSession_OpenSendsHeartbeat(t *testing.T) {
	clock := newFakeClock()
	s := NewSession("ss-1", memory.New(), 17, Options{Clock: clock})

	f := s.Open()
	if f.Event != model.FrameHeartbeat {
		t.Fatalf("first frame = %q, want heartbeat", f.Event)
	}
	if f.ID != 17 {
		t.Errorf("heartbeat id = %d, want cursor 17", f.ID)
	}
	p := decodeSessionFrame(t, f)
	if p.Cursor != 17 || p.Time != clock.Now().Format(time.RFC3339) {
		t.Errorf("heartbeat payload = %+v", p)
	}
}

func TestSession_PollDeliversInOrderAndAdvancesCursor(t *testing.T) {
	log := memory.New()
	a := appendRecord(t, log, model.ChangeCreate, `{"id":1}`)
	b := appendRecord(t, log, model.ChangeUpdate, `{"id":1,"title":"x"}`)

	s := NewSession("ss-1", log, 0, Options{Clock: newFakeClock()})
	s.Open()

	frames, err := s.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].ID != a || frames[1].ID != b {
		t.Fatalf("frame ids = %d,%d want %d,%d", frames[0].ID, frames[1].ID, a, b)
	}
	if frames[0].Event != model.ChangeCreate || string(frames[0].Data) != `{"id":1}` {
		t.Errorf("unexpected first frame: %+v", frames[0])
	}
	if s.Cursor() != b {
		t.Errorf("cursor = %d, want %d", s.Cursor(), b)
	}

	frames, _ = s.Poll(context.Background())
	if len(frames) != 0 {
		t.Fatalf("second poll delivered %d frames, want 0", len(frames))
	}
}

func TestSession_PollRespectsBatchLimit(t *testing.T) {
	log := memory.New()
	for range 7 {
		appendRecord(t, log, model.ChangeCreate, `{}`)
	}
	s := NewSession("ss-1", log, 0, Options{Clock: newFakeClock(), BatchLimit: 3})
	s.Open()

	var sizes []int
	for range 4 {
		frames, err := s.Poll(context.Background())
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		sizes = append(sizes, len(frames))
	}
	want := []int{3, 3, 1, 0}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("batch sizes = %v, want %v", sizes, want)
		}
	}
	if s.Cursor() != 7 {
		t.Errorf("cursor = %d, want 7", s.Cursor())
	}
}

func TestSession_HeartbeatInterval(t *testing.T) {
	clock := newFakeClock()
	log := memory.New()
	s := NewSession("ss-1", log, 0, Options{Clock: clock, HeartbeatInterval: 10 * time.Second})
	s.Open()

	clock.Advance(9 * time.Second)
	frames, _ := s.Poll(context.Background())
	if len(frames) != 0 {
		t.Fatalf("unexpected frames before the interval: %+v", frames)
	}

	id := appendRecord(t, log, model.ChangeCreate, `{}`)
	clock.Advance(time.Second)
	frames, _ = s.Poll(context.Background())
	if len(frames) != 2 {
		t.Fatalf("expected record + heartbeat, got %d frames", len(frames))
	}
	if frames[0].ID != id || frames[1].Event != model.FrameHeartbeat {
		t.Fatalf("unexpected frames: %+v", frames)
	}
	if p := decodeSessionFrame(t, frames[1]); p.Cursor != id {
		t.Errorf("heartbeat cursor = %d, want %d", p.Cursor, id)
	}

	clock.Advance(5 * time.Second)
	frames, _ = s.Poll(context.Background())
	if len(frames) != 0 {
		t.Fatalf("heartbeat interval was not reset: %+v", frames)
	}
}

func TestSession_Expired(t *testing.T) {
	clock := newFakeClock()
	s := NewSession("ss-1", memory.New(), 0, Options{Clock: clock, MaxDuration: time.Minute})
	s.Open()

	clock.Advance(59 * time.Second)
	if s.Expired() {
		t.Fatal("expired early")
	}
	clock.Advance(time.Second)
	if !s.Expired() {
		t.Fatal("not expired at the ceiling")
	}
}

func TestSession_CloseFrames(t *testing.T) {
	s := NewSession("ss-1", memory.New(), 501, Options{Clock: newFakeClock()})

	timeout := s.Close(nil)
	if timeout.Event != model.FrameTimeout || timeout.ID != 501 {
		t.Fatalf("unexpected timeout frame: %+v", timeout)
	}
	if p := decodeSessionFrame(t, timeout); !p.Reconnect || p.Cursor != 501 {
		t.Errorf("timeout payload = %+v", p)
	}

	failed := s.Close(errors.New("connection refused"))
	if failed.Event != model.FrameError || failed.ID != 501 {
		t.Fatalf("unexpected error frame: %+v", failed)
	}
	if p := decodeSessionFrame(t, failed); p.Error != "connection refused" {
		t.Errorf("error payload = %+v", p)
	}
}

func TestSession_IdempotentResume(t *testing.T) {
	log := memory.New()
	last := appendRecord(t, log, model.ChangeCreate, `{}`)
	clock := newFakeClock()

	for attempt := range 2 {
		s := NewSession("ss-1", log, last, Options{Clock: clock})
		frames := []Frame{s.Open()}
		polled, err := s.Poll(context.Background())
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		frames = append(frames, polled...)
		if len(frames) != 1 || frames[0].Event != model.FrameHeartbeat {
			t.Fatalf("attempt %d: expected only a heartbeat, got %+v", attempt, frames)
		}
	}
}

func TestSession_RunTimesOut(t *testing.T) {
	clock := newFakeClock()
	s := NewSession("ss-1", memory.New(), 3, Options{
		Clock:        clock,
		PollInterval: time.Second,
		MaxDuration:  2 * time.Second,
		Logger:       quietLogger(),
	})
	out := newCollector()

	done := make(chan string, 1)
	go func() {
		reason, _ := s.Run(context.Background(), out, nil)
		done <- reason
	}()

	blockUntilWaiting(t, clock)
	clock.Advance(time.Second)
	blockUntilWaiting(t, clock)
	clock.Advance(time.Second)

	select {
	case reason := <-done:
		if reason != metrics.ReasonTimeout {
			t.Fatalf("reason = %q, want timeout", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}

	frames := out.Frames()
	last := frames[len(frames)-1]
	if frames[0].Event != model.FrameHeartbeat || last.Event != model.FrameTimeout || last.ID != 3 {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}

func TestSession_RunReadErrorEmitsErrorFrame(t *testing.T) {
	log := &flakyLog{Store: memory.New()}
	log.setFailing(errors.New("db unavailable"))

	s := NewSession("ss-1", log, 9, Options{Clock: newFakeClock(), Logger: quietLogger()})
	out := newCollector()

	reason, err := s.Run(context.Background(), out, nil)
	if reason != metrics.ReasonError || err == nil {
		t.Fatalf("Run = %q, %v; want error", reason, err)
	}
	frames := out.Frames()
	if len(frames) != 2 || frames[1].Event != model.FrameError || frames[1].ID != 9 {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}

func TestSession_RunStopsOnEmitFailure(t *testing.T) {
	log := memory.New()
	for range 3 {
		appendRecord(t, log, model.ChangeCreate, `{}`)
	}
	s := NewSession("ss-1", log, 0, Options{Clock: newFakeClock(), Logger: quietLogger()})
	out := newCollector()
	out.failAt = 3

	reason, err := s.Run(context.Background(), out, nil)
	if reason != metrics.ReasonDisconnect || err != nil {
		t.Fatalf("Run = %q, %v; want disconnect", reason, err)
	}
	if got := len(out.Frames()); got != 2 {
		t.Fatalf("expected 2 frames before the failure, got %d", got)
	}
}

func TestSession_RunStopsOnCancel(t *testing.T) {
	clock := newFakeClock()
	s := NewSession("ss-1", memory.New(), 0, Options{Clock: clock, Logger: quietLogger()})
	out := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan string, 1)
	go func() {
		reason, _ := s.Run(ctx, out, nil)
		done <- reason
	}()

	blockUntilWaiting(t, clock)
	cancel()

	select {
	case reason := <-done:
		if reason != metrics.ReasonDisconnect {
			t.Fatalf("reason = %q, want disconnect", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	for _, f := range out.Frames() {
		if f.Event == model.FrameTimeout || f.Event == model.FrameError {
			t.Fatalf("no final frame expected after disconnect, got %q", f.Event)
		}
	}
}

func TestSession_RunWakeSkipsSleep(t *testing.T) {
	clock := newFakeClock()
	log := memory.New()
	s := NewSession("ss-1", log, 0, Options{Clock: clock, PollInterval: time.Hour, Logger: quietLogger()})
	out := newCollector()
	wake := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, out, wake) //nolint:errcheck

	if f := out.next(t, time.Second); f.Event != model.FrameHeartbeat {
		t.Fatalf("first frame = %q", f.Event)
	}
	blockUntilWaiting(t, clock)

	id := appendRecord(t, log, model.ChangeCreate, `{"id":42}`)
	wake <- struct{}{}

	f := out.next(t, time.Second)
	if f.ID != id || f.Event != model.ChangeCreate {
		t.Fatalf("unexpected frame after wake: %+v", f)
	}
}

func TestSession_RunDrainsBacklogWithoutSleeping(t *testing.T) {
	clock := newFakeClock()
	log := memory.New()
	for range 10 {
		appendRecord(t, log, model.ChangeCreate, `{}`)
	}
	s := NewSession("ss-1", log, 0, Options{Clock: clock, BatchLimit: 4, PollInterval: time.Hour, Logger: quietLogger()})
	out := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, out, nil) //nolint:errcheck

	out.next(t, time.Second) // heartbeat
	for want := int64(1); want <= 10; want++ {
		if f := out.next(t, time.Second); f.ID != want {
			t.Fatalf("got id %d, want %d", f.ID, want)
		}
	}
}

func TestSession_RunPropagationLatency(t *testing.T) {
	const poll = 50 * time.Millisecond
	log := memory.New()
	s := NewSession("ss-1", log, 0, Options{PollInterval: poll, Logger: quietLogger()})
	out := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, out, nil) //nolint:errcheck

	out.next(t, time.Second) // heartbeat
	time.Sleep(poll / 3)

	start := time.Now()
	id := appendRecord(t, log, model.ChangeCreate, `{"id":42,"title":"Meeting"}`)
	f := out.next(t, time.Second)
	if f.ID != id {
		t.Fatalf("got id %d, want %d", f.ID, id)
	}
	if elapsed := time.Since(start); elapsed > 2*poll {
		t.Fatalf("record delivered after %v, want within %v", elapsed, 2*poll)
	}
}

func TestSession_OrderingUnderConcurrentAppends(t *testing.T) {
	log := memory.New()
	s := NewSession("ss-1", log, 0, Options{PollInterval: 5 * time.Millisecond, Logger: quietLogger()})
	out := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, out, nil) //nolint:errcheck

	const producers, perProducer = 4, 25
	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perProducer {
				rec := &model.ChangeRecord{EventType: model.ChangeUpdate, Payload: json.RawMessage(`{}`)}
				if err := log.AppendChange(context.Background(), rec); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for s.Cursor() < producers*perProducer && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	var last int64
	delivered := 0
	for _, f := range out.Frames() {
		if !f.IsRecord() {
			continue
		}
		if f.ID <= last {
			t.Fatalf("out of order: %d after %d", f.ID, last)
		}
		last = f.ID
		delivered++
	}
	if delivered != producers*perProducer {
		t.Fatalf("delivered %d records, want %d", delivered, producers*perProducer)
	}
}
