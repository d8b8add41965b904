package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/calfeed/internal/idgen"
	"github.com/alfredjeanlab/calfeed/internal/model"
	"github.com/alfredjeanlab/calfeed/internal/presence"
	"github.com/alfredjeanlab/calfeed/internal/stream"
)

// maxListLimit caps GET /v1/changes.
const maxListLimit = 1000

// sessionHeader carries the stream session id in the response.
const sessionHeader = "X-Calfeed-Session"

// handleChangeStream handles GET /v1/changes/stream (SSE endpoint).
//
// The session resumes after the larger of the last_event_id query parameter
// and the Last-Event-ID header; browsers send the header on automatic
// reconnects, clients that reconnect by hand pass the parameter.
func (s *Server) handleChangeStream(w http.ResponseWriter, r *http.Request) {
	// Ensure response supports flushing (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sessionID, err := idgen.Session()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cursor := resumeCursor(r)

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.Header().Set(sessionHeader, sessionID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := s.logger.With("session_id", sessionID)
	s.Presence.Open(presence.SessionInfo{
		SessionID:  sessionID,
		ClientID:   r.URL.Query().Get("client"),
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Cursor:     cursor,
	})
	defer s.Presence.Close(sessionID)

	wake, unsubscribe := s.notifier.Subscribe()
	defer unsubscribe()

	sess := stream.NewSession(sessionID, s.store, cursor, s.stream)
	emit := stream.EmitterFunc(func(f stream.Frame) error {
		if err := writeSSEFrame(w, f); err != nil {
			return err
		}
		flusher.Flush()
		s.Presence.Advance(sessionID, f.ID)
		return nil
	})

	logger.Debug("stream session opened", "cursor", cursor, "remote_addr", r.RemoteAddr)
	reason, err := sess.Run(r.Context(), emit, wake)
	if err != nil {
		logger.Warn("stream session failed", "cursor", sess.Cursor(), "error", err)
		return
	}
	logger.Debug("stream session ended", "reason", reason, "cursor", sess.Cursor())
}

// resumeCursor returns the larger of the last_event_id query parameter and
// the Last-Event-ID header. Missing, malformed and negative values count as 0.
func resumeCursor(r *http.Request) int64 {
	var cursor int64
	for _, v := range []string{r.URL.Query().Get("last_event_id"), r.Header.Get("Last-Event-ID")} {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err == nil && n > cursor {
			cursor = n
		}
	}
	return cursor
}

// writeSSEFrame writes a single SSE event to the writer. The data field must
// be one line, so payloads containing newlines are compacted first.
func writeSSEFrame(w io.Writer, f stream.Frame) error {
	data := []byte(f.Data)
	if bytes.ContainsAny(data, "\r\n") {
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return fmt.Errorf("compact frame %d: %w", f.ID, err)
		}
		data = buf.Bytes()
	}
	_, err := fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", f.ID, f.Event, data)
	return err
}

// handleListChanges handles GET /v1/changes: one non-streaming read of the
// log after the given cursor.
func (s *Server) handleListChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after int64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = n
	}
	limit := stream.DefaultBatchLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	ctx := r.Context()
	latest, err := s.store.LatestChangeID(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	recs, err := s.store.ChangesSince(ctx, after, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []*model.ChangeRecord{}
	}

	cursor := after
	if n := len(recs); n > 0 {
		cursor = recs[n-1].ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changes": recs,
		"cursor":  cursor,
		"latest":  max(latest, cursor),
	})
}

// handleSessions handles GET /v1/changes/sessions.
// Returns the roster of open stream sessions, oldest first.
func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"sessions": s.Presence.Roster()}
	if lowest, ok := s.Presence.LowestCursor(); ok {
		resp["lowest_cursor"] = lowest
	}
	writeJSON(w, http.StatusOK, resp)
}
