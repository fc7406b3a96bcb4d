package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"
)

// scriptedSession replays statuses in order and records every call.
type scriptedSession struct {
	statuses []int
	calls    int
	err      error
}

func (s *scriptedSession) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	status := s.statuses[len(s.statuses)-1]
	if s.calls <= len(s.statuses) {
		status = s.statuses[s.calls-1]
	}
	return &Response{StatusCode: status, Header: http.Header{}, Body: []byte(`{}`)}, nil
}

// recordingSleep records requested durations without sleeping.
type recordingSleep struct {
	durations []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.durations = append(r.durations, d)
	return ctx.Err()
}

func testRetryConfig(r *recordingSleep) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.Sleep = r.sleep
	return cfg
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 10 {
		t.Errorf("MaxRetries = %d, want 10", config.MaxRetries)
	}
	if config.Backoff != 30*time.Second {
		t.Errorf("Backoff = %v, want 30s", config.Backoff)
	}
	if config.Sleep == nil {
		t.Error("Sleep should default to a real sleep")
	}
}

func TestGetWithRetry_Success(t *testing.T) {
	session := &scriptedSession{statuses: []int{200}}
	sleeper := &recordingSleep{}

	resp, err := GetWithRetry(context.Background(), session, "https://example.com/1.1/search/tweets.json", nil, testRetryConfig(sleeper))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if session.calls != 1 {
		t.Errorf("Expected 1 call, got %d", session.calls)
	}
	if len(sleeper.durations) != 0 {
		t.Errorf("Expected no backoff, got %v", sleeper.durations)
	}
}

func TestGetWithRetry_SuccessAfterUnavailable(t *testing.T) {
	session := &scriptedSession{statuses: []int{503, 503, 503, 200}}
	sleeper := &recordingSleep{}

	resp, err := GetWithRetry(context.Background(), session, "https://example.com/1.1/search/tweets.json", nil, testRetryConfig(sleeper))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if session.calls != 4 {
		t.Errorf("Expected 4 calls, got %d", session.calls)
	}
	if len(sleeper.durations) != 3 {
		t.Fatalf("Expected 3 backoffs, got %d", len(sleeper.durations))
	}
	for i, d := range sleeper.durations {
		if d != 30*time.Second {
			t.Errorf("backoff[%d] = %v, want 30s", i, d)
		}
	}
}

func TestGetWithRetry_RetriesExhausted(t *testing.T) {
	session := &scriptedSession{statuses: []int{503}}
	sleeper := &recordingSleep{}

	_, err := GetWithRetry(context.Background(), session, "https://example.com/1.1/search/tweets.json", nil, testRetryConfig(sleeper))
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("Expected ErrProviderUnavailable, got %v", err)
	}
	// initial request plus 10 retries
	if session.calls != 11 {
		t.Errorf("Expected 11 calls, got %d", session.calls)
	}
	if len(sleeper.durations) != 10 {
		t.Errorf("Expected 10 backoffs, got %d", len(sleeper.durations))
	}
}

func TestGetWithRetry_FatalStatusNoRetry(t *testing.T) {
	for _, status := range []int{401, 404, 429, 500} {
		session := &scriptedSession{statuses: []int{status, 200}}
		sleeper := &recordingSleep{}

		_, err := GetWithRetry(context.Background(), session, "https://example.com/1.1/search/tweets.json", nil, testRetryConfig(sleeper))

		var providerErr *ProviderError
		if !errors.As(err, &providerErr) {
			t.Fatalf("status %d: expected *ProviderError, got %v", status, err)
		}
		if providerErr.StatusCode != status {
			t.Errorf("StatusCode = %d, want %d", providerErr.StatusCode, status)
		}
		if providerErr.Endpoint != "/1.1/search/tweets.json" {
			t.Errorf("Endpoint = %q", providerErr.Endpoint)
		}
		if session.calls != 1 {
			t.Errorf("status %d: expected 1 call (no retry), got %d", status, session.calls)
		}
	}
}

func TestGetWithRetry_NetworkErrorNotRetried(t *testing.T) {
	netErr := errors.New("connection refused")
	session := &scriptedSession{err: netErr}
	sleeper := &recordingSleep{}

	_, err := GetWithRetry(context.Background(), session, "https://example.com/x", nil, testRetryConfig(sleeper))
	if !errors.Is(err, netErr) {
		t.Errorf("Expected network error, got %v", err)
	}
	if session.calls != 1 {
		t.Errorf("Expected 1 call, got %d", session.calls)
	}
}

func TestGetWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := &scriptedSession{statuses: []int{503}}

	cfg := DefaultRetryConfig()
	cfg.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := GetWithRetry(ctx, session, "https://example.com/x", nil, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if session.calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", session.calls)
	}
}

func TestSleep_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep should return immediately on a cancelled context")
	}
}

func TestSleep_NonPositive(t *testing.T) {
	if err := Sleep(context.Background(), -time.Second); err != nil {
		t.Errorf("Sleep(-1s) = %v, want nil", err)
	}
}
