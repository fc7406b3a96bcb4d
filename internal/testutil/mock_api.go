// Package testutil provides testing utilities for the timeline collector.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines one scripted provider response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// RecordedRequest is a request seen by the mock server.
type RecordedRequest struct {
	Path   string
	Query  url.Values
	Header http.Header
}

// MockAPI is a scripted mock provider for testing. Each path serves its
// queued responses in order; the last one repeats once the queue is drained.
type MockAPI struct {
	server *httptest.Server
	mu     sync.Mutex
	queues map[string][]MockResponse

	requests []RecordedRequest
}

// NewMockAPI creates a new mock provider server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		queues: make(map[string][]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Enqueue appends scripted responses for a path.
func (m *MockAPI) Enqueue(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[path] = append(m.queues[path], responses...)
}

// Requests returns a copy of all requests seen so far.
func (m *MockAPI) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestsTo returns the requests seen for one path.
func (m *MockAPI) RequestsTo(path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range m.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (m *MockAPI) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
	})

	queue := m.queues[r.URL.Path]
	var resp MockResponse
	found := len(queue) > 0
	if found {
		resp = queue[0]
		if len(queue) > 1 {
			m.queues[r.URL.Path] = queue[1:]
		}
	}
	m.mu.Unlock()

	if !found {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":[{"code":34,"message":"Sorry, that page does not exist."}]}`))
		return
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewPageResponse creates a 200 response carrying rate limit headers.
func NewPageResponse(body string, remaining int, resetAt time.Time) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"X-Rate-Limit-Remaining": strconv.Itoa(remaining),
			"X-Rate-Limit-Reset":     strconv.FormatInt(resetAt.Unix(), 10),
		},
	}
}

// NewBareResponse creates a 200 response without rate limit headers.
func NewBareResponse(body string) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: body}
}

// NewUnavailableResponse creates a 503 Service Unavailable response.
func NewUnavailableResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"errors":[{"code":130,"message":"Over capacity"}]}`,
	}
}

// NewErrorResponse creates an error response with the given status.
func NewErrorResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       `{"errors":[{"code":0,"message":"error"}]}`,
	}
}
