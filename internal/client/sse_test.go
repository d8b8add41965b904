package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestStream(body string) *Stream {
	return NewStream(io.NopCloser(strings.NewReader(body)))
}

func TestStream_Next(t *testing.T) {
	s := newTestStream(
		": comment\n" +
			"id:0\nevent:heartbeat\ndata:{\"cursor\":0}\n\n" +
			"id: 501\nevent: create\ndata: {\"id\":42,\"title\":\"Meeting\"}\n\n" +
			"data:line one\ndata:line two\n\n",
	)

	f, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !f.HasID || f.ID != 0 || f.Event != "heartbeat" || string(f.Data) != `{"cursor":0}` {
		t.Fatalf("frame 1 = %+v", f)
	}

	f, _ = s.Next()
	if f.ID != 501 || f.Event != "create" || string(f.Data) != `{"id":42,"title":"Meeting"}` {
		t.Fatalf("frame 2 = %+v (%s)", f, f.Data)
	}

	f, _ = s.Next()
	if f.HasID || f.Event != "message" || string(f.Data) != "line one\nline two" {
		t.Fatalf("frame 3 = %+v (%q)", f, f.Data)
	}

	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestStream_Truncated(t *testing.T) {
	s := newTestStream("id:3\nevent:create\ndata:{\"id\"")
	if _, err := s.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestStream_IgnoresMalformedID(t *testing.T) {
	s := newTestStream("id:abc\nevent:update\ndata:{}\n\n")
	f, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.HasID {
		t.Fatalf("malformed id accepted: %+v", f)
	}
}

func TestHTTPClient_OpenStream(t *testing.T) {
	var gotQuery, gotHeader, gotAuth, gotClient string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("last_event_id")
		gotClient = r.URL.Query().Get("client")
		gotHeader = r.Header.Get("Last-Event-ID")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Calfeed-Session", "ss-test")
		_, _ = io.WriteString(w, "id:12\nevent:heartbeat\ndata:{\"cursor\":12}\n\n")
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok")
	c.SetClientID("cl-test")
	s, err := c.OpenStream(context.Background(), 12)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer s.Close()

	if gotQuery != "12" || gotHeader != "12" {
		t.Fatalf("resume cursor not sent: query=%q header=%q", gotQuery, gotHeader)
	}
	if gotClient != "cl-test" {
		t.Fatalf("client = %q", gotClient)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if s.SessionID != "ss-test" {
		t.Fatalf("SessionID = %q", s.SessionID)
	}
	if f, err := s.Next(); err != nil || f.ID != 12 {
		t.Fatalf("Next = %+v, %v", f, err)
	}
}

func TestHTTPClient_OpenStream_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("last_event_id") == "1" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":"draining"}`)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>")
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.OpenStream(context.Background(), 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable || apiErr.Message != "draining" {
		t.Fatalf("expected APIError 503, got %v", err)
	}

	if _, err := c.OpenStream(context.Background(), 2); err == nil || !strings.Contains(err.Error(), "content type") {
		t.Fatalf("expected content type error, got %v", err)
	}
}
