package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	// captured from the request
	method      string
	path        string
	query       string
	body        string
	contentType string
	auth        string

	// canned response
	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.query = r.URL.RawQuery
	h.contentType = r.Header.Get("Content-Type")
	h.auth = r.Header.Get("Authorization")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

// newTestClient creates an HTTPClient pointed at a test server with the given handler.
func newTestClient(h http.Handler) (*HTTPClient, *httptest.Server) {
	srv := httptest.NewServer(h)
	c := NewHTTPClient(srv.URL+"/", "secret")
	return c, srv
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Users ---

func TestHTTPClient_CreateUser(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusCreated,
		responseBody: `{"id":7,"name":"alice","email":"alice@example.com","color":"#3a87ad","created_at":"2026-03-01T10:00:00Z"}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	u, err := c.CreateUser(context.Background(), &CreateUserRequest{Name: "alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if h.method != http.MethodPost || h.path != "/v1/users" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if h.contentType != "application/json" {
		t.Errorf("Content-Type = %q", h.contentType)
	}
	if h.auth != "Bearer secret" {
		t.Errorf("Authorization = %q", h.auth)
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte(h.body), &sent); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if sent["name"] != "alice" {
		t.Errorf("sent name = %v", sent["name"])
	}
	if _, ok := sent["color"]; ok {
		t.Error("empty color should be omitted")
	}
	if u.ID != 7 || u.Color != "#3a87ad" {
		t.Errorf("user = %+v", u)
	}
}

func TestHTTPClient_ListUsers(t *testing.T) {
	h := &testHandler{responseBody: `{"users":[{"id":1,"name":"a"},{"id":2,"name":"b"}]}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	users, err := c.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[1].Name != "b" {
		t.Errorf("users = %+v", users)
	}
}

// --- Events ---

func TestHTTPClient_CreateEvent(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusCreated,
		responseBody: `{"id":42,"title":"Meeting","start":"2026-03-02T09:00:00Z","owner_id":1,"owner_name":"alice"}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	v, err := c.CreateEvent(context.Background(), &CreateEventRequest{Title: "Meeting", Start: start, OwnerID: 1})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if strings.Contains(h.body, `"end"`) {
		t.Errorf("zero end should be omitted: %s", h.body)
	}
	if v.ID != 42 || v.OwnerName != "alice" {
		t.Errorf("view = %+v", v)
	}
}

func TestHTTPClient_UpdateEvent(t *testing.T) {
	h := &testHandler{responseBody: `{"id":42,"title":"Planning"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	title := "Planning"
	if _, err := c.UpdateEvent(context.Background(), 42, &UpdateEventRequest{Title: &title}); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	if h.method != http.MethodPatch || h.path != "/v1/events/42" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if h.body != `{"title":"Planning"}` {
		t.Errorf("body = %s", h.body)
	}
}

func TestHTTPClient_DeleteEvent(t *testing.T) {
	h := &testHandler{statusCode: http.StatusNoContent}
	c, srv := newTestClient(h)
	defer srv.Close()

	if err := c.DeleteEvent(context.Background(), 42); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if h.method != http.MethodDelete || h.path != "/v1/events/42" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if h.body != "" {
		t.Errorf("DELETE sent a body: %q", h.body)
	}
}

func TestHTTPClient_ListEventsQuery(t *testing.T) {
	h := &testHandler{responseBody: `{"events":[]}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.ListEvents(context.Background(), &ListEventsRequest{
		OwnerIDs: []int64{1, 3},
		From:     from,
		To:       to,
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	q, _ := url.ParseQuery(h.query)
	if q.Get("owner") != "1,3" {
		t.Errorf("owner = %q", q.Get("owner"))
	}
	if q.Get("from") != "2026-03-01T00:00:00Z" || q.Get("to") != "2026-04-01T00:00:00Z" {
		t.Errorf("range = %q..%q", q.Get("from"), q.Get("to"))
	}
	if q.Get("limit") != "10" {
		t.Errorf("limit = %q", q.Get("limit"))
	}

	if _, err := c.ListEvents(context.Background(), nil); err != nil {
		t.Fatalf("ListEvents(nil): %v", err)
	}
	if h.query != "" {
		t.Errorf("empty request sent query %q", h.query)
	}
}

// --- Notifications and change log ---

func TestHTTPClient_Notify(t *testing.T) {
	h := &testHandler{statusCode: http.StatusAccepted, responseBody: `{"id":12,"type":"system_maintenance"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	resp, err := c.Notify(context.Background(), &NotifyRequest{Type: "system_maintenance", Message: "db upgrade"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if h.path != "/v1/notifications" || resp.ID != 12 || resp.Type != "system_maintenance" {
		t.Errorf("path=%s resp=%+v", h.path, resp)
	}
}

func TestHTTPClient_ListChanges(t *testing.T) {
	h := &testHandler{responseBody: `{
		"changes": [{"id":5,"event_type":"create","payload":{"id":42}}],
		"cursor": 5,
		"latest": 9
	}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	page, err := c.ListChanges(context.Background(), 4, 1)
	if err != nil {
		t.Fatalf("ListChanges: %v", err)
	}
	if h.query != "after=4&limit=1" {
		t.Errorf("query = %q", h.query)
	}
	if len(page.Changes) != 1 || page.Changes[0].EventType != "create" || page.Cursor != 5 || page.Latest != 9 {
		t.Errorf("page = %+v", page)
	}
	if string(page.Changes[0].Payload) != `{"id":42}` {
		t.Errorf("payload = %s", page.Changes[0].Payload)
	}
}

func TestHTTPClient_ListSessions(t *testing.T) {
	h := &testHandler{responseBody: `{"sessions":[{"session_id":"ss-1","cursor":7}],"lowest_cursor":7}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	resp, err := c.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(resp.Sessions) != 1 || resp.LowestCursor == nil || *resp.LowestCursor != 7 {
		t.Errorf("resp = %+v", resp)
	}
}

// --- Errors ---

func TestHTTPClient_APIError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"json error", http.StatusBadRequest, `{"error":"title is required"}`, "title is required"},
		{"plain body", http.StatusBadGateway, "upstream down\n", "upstream down"},
		{"not found", http.StatusNotFound, `{"error":"not found"}`, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &testHandler{statusCode: tt.status, responseBody: tt.body}
			c, srv := newTestClient(h)
			defer srv.Close()

			_, err := c.GetEvent(context.Background(), 1)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Message != tt.wantMsg {
				t.Errorf("APIError = %+v", apiErr)
			}
		})
	}
}

func TestHTTPClient_NoTokenNoHeader(t *testing.T) {
	h := &testHandler{responseBody: `{"status":"ok","latest":3,"sessions":1}`}
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.auth != "" {
		t.Errorf("Authorization = %q, want none", h.auth)
	}
	if resp.Status != "ok" || resp.Latest != 3 || resp.Sessions != 1 {
		t.Errorf("health = %+v", resp)
	}
}
