package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxFrameLine bounds one line of the event stream.
const maxFrameLine = 1 << 20

// Frame is one event read from a change stream. HasID is false when the
// server sent no id field.
type Frame struct {
	ID    int64
	HasID bool
	Event string
	Data  []byte
}

// Stream reads frames from one open change stream connection.
type Stream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	SessionID string
}

// NewStream wraps an event-stream body.
func NewStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameLine)
	return &Stream{body: body, scanner: scanner}
}

// OpenStream connects to the change stream, resuming after cursor. The
// cursor is sent both as the last_event_id parameter and the Last-Event-ID
// header.
func (c *HTTPClient) OpenStream(ctx context.Context, cursor int64) (*Stream, error) {
	id := strconv.FormatInt(cursor, 10)
	q := url.Values{"last_event_id": {id}}
	if c.clientID != "" {
		q.Set("client", c.clientID)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/changes/stream?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Last-Event-ID", id)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apiError(resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("opening stream: unexpected content type %q", ct)
	}

	s := NewStream(resp.Body)
	s.SessionID = resp.Header.Get("X-Calfeed-Session")
	return s, nil
}

// Next blocks until the next frame is complete. It returns io.EOF when the
// server ends the stream cleanly between frames and io.ErrUnexpectedEOF when
// the stream breaks off mid-frame.
func (s *Stream) Next() (Frame, error) {
	var (
		f       Frame
		data    []string
		started bool
	)
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if !started {
				continue
			}
			if f.Event == "" {
				f.Event = "message"
			}
			f.Data = []byte(strings.Join(data, "\n"))
			return f, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		started = true
		switch field {
		case "id":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				f.ID = n
				f.HasID = true
			}
		case "event":
			f.Event = value
		case "data":
			data = append(data, value)
		}
	}
	if err := s.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if started {
		return Frame{}, io.ErrUnexpectedEOF
	}
	return Frame{}, io.EOF
}

// Close closes the underlying connection.
func (s *Stream) Close() error {
	return s.body.Close()
}
