package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/model"
)

// HTTPClient implements CalendarClient using the calfeed HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	clientID   string
	httpClient *http.Client
}

// Compile-time check that HTTPClient implements CalendarClient.
var _ CalendarClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// SetClientID tags every stream this client opens, so the server's session
// roster can group the sessions of one logical stream across rotations.
func (c *HTTPClient) SetClientID(id string) { c.clientID = id }

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// call sends body (if any) as JSON and decodes the reply into a new T.
func call[T any](ctx context.Context, c *HTTPClient, method, path string, body any) (*T, error) {
	out := new(T)
	if err := c.doJSON(ctx, method, path, body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func userPath(id int64) string  { return "/v1/users/" + strconv.FormatInt(id, 10) }
func eventPath(id int64) string { return "/v1/events/" + strconv.FormatInt(id, 10) }

func (c *HTTPClient) CreateUser(ctx context.Context, req *CreateUserRequest) (*model.User, error) {
	return call[model.User](ctx, c, http.MethodPost, "/v1/users", req)
}

func (c *HTTPClient) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return call[model.User](ctx, c, http.MethodGet, userPath(id), nil)
}

func (c *HTTPClient) ListUsers(ctx context.Context) ([]*model.User, error) {
	page, err := call[struct {
		Users []*model.User `json:"users"`
	}](ctx, c, http.MethodGet, "/v1/users", nil)
	if err != nil {
		return nil, err
	}
	return page.Users, nil
}

func (c *HTTPClient) CreateEvent(ctx context.Context, req *CreateEventRequest) (*model.EventView, error) {
	return call[model.EventView](ctx, c, http.MethodPost, "/v1/events", req)
}

func (c *HTTPClient) GetEvent(ctx context.Context, id int64) (*model.EventView, error) {
	return call[model.EventView](ctx, c, http.MethodGet, eventPath(id), nil)
}

// query encodes the filter; a nil request lists everything.
func (r *ListEventsRequest) query() url.Values {
	q := url.Values{}
	if r == nil {
		return q
	}
	if len(r.OwnerIDs) > 0 {
		ids := make([]string, len(r.OwnerIDs))
		for i, id := range r.OwnerIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		q.Set("owner", strings.Join(ids, ","))
	}
	if !r.From.IsZero() {
		q.Set("from", r.From.Format(time.RFC3339))
	}
	if !r.To.IsZero() {
		q.Set("to", r.To.Format(time.RFC3339))
	}
	if r.Limit > 0 {
		q.Set("limit", strconv.Itoa(r.Limit))
	}
	return q
}

func (c *HTTPClient) ListEvents(ctx context.Context, req *ListEventsRequest) ([]*model.EventView, error) {
	path := "/v1/events"
	if q := req.query(); len(q) > 0 {
		path += "?" + q.Encode()
	}
	page, err := call[struct {
		Events []*model.EventView `json:"events"`
	}](ctx, c, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return page.Events, nil
}

func (c *HTTPClient) UpdateEvent(ctx context.Context, id int64, req *UpdateEventRequest) (*model.EventView, error) {
	return call[model.EventView](ctx, c, http.MethodPatch, eventPath(id), req)
}

func (c *HTTPClient) DeleteEvent(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, eventPath(id), nil, nil)
}

// Notify posts a free-form notification. The server acknowledges with 202
// even when recording it failed, in which case the returned ID is 0.
func (c *HTTPClient) Notify(ctx context.Context, req *NotifyRequest) (*NotifyResponse, error) {
	return call[NotifyResponse](ctx, c, http.MethodPost, "/v1/notifications", req)
}

// ListChanges pages through the change log after the given cursor.
func (c *HTTPClient) ListChanges(ctx context.Context, after int64, limit int) (*ChangesPage, error) {
	q := url.Values{"after": {strconv.FormatInt(after, 10)}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return call[ChangesPage](ctx, c, http.MethodGet, "/v1/changes?"+q.Encode(), nil)
}

func (c *HTTPClient) ListSessions(ctx context.Context) (*SessionsResponse, error) {
	return call[SessionsResponse](ctx, c, http.MethodGet, "/v1/changes/sessions", nil)
}

func (c *HTTPClient) Health(ctx context.Context) (*HealthResponse, error) {
	return call[HealthResponse](ctx, c, http.MethodGet, "/v1/health", nil)
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// newRequest builds a request with the auth header set.
func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content: success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

func apiError(status int, body []byte) *APIError {
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: status, Message: errResp.Error}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}
