package stream

import (
	"encoding/json"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/model"
)

// Frame is one unit written to a client: an id, an event type and a JSON
// payload. Record frames carry the record id; session frames carry the
// session cursor so a native Last-Event-ID resume starts at the right place.
type Frame struct {
	ID    int64
	Event string
	Data  json.RawMessage
}

// IsRecord reports whether the frame carries a change record.
func (f Frame) IsRecord() bool {
	return !model.IsSessionFrame(f.Event)
}

func recordFrame(rec *model.ChangeRecord) Frame {
	data := rec.Payload
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	return Frame{ID: rec.ID, Event: rec.EventType, Data: data}
}

func sessionFrame(event string, p model.SessionFrame) Frame {
	// SessionFrame only holds strings, ints and bools.
	data, _ := json.Marshal(p)
	return Frame{ID: p.Cursor, Event: event, Data: data}
}

func heartbeatFrame(cursor int64, now time.Time) Frame {
	return sessionFrame(model.FrameHeartbeat, model.SessionFrame{
		Cursor: cursor,
		Time:   now.UTC().Format(time.RFC3339),
	})
}

// Emitter delivers frames to a client. An error means the client is gone.
type Emitter interface {
	Emit(f Frame) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(f Frame) error

func (fn EmitterFunc) Emit(f Frame) error { return fn(f) }
