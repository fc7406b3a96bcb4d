package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/timeline-collector/pkg/client"
	"github.com/Sternrassler/timeline-collector/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	quotaRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "timeline_quota_remaining",
		Help: "Requests remaining in the current provider window by resource",
	}, []string{"resource"})

	quotaWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_quota_waits_total",
		Help: "Total number of waits for a quota window reset by resource",
	}, []string{"resource"})

	quotaWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "timeline_quota_wait_seconds",
		Help:    "Time spent waiting for quota window resets",
		Buckets: []float64{10, 30, 60, 300, 600, 900, 1800},
	})
)

// DefaultMargin is added to every reset wait.
const DefaultMargin = 10 * time.Second

// QuotaSource reads one resource's entry from the rate_limit_status payload.
type QuotaSource interface {
	ExtractQuota(body []byte) (remaining int, resetAt time.Time, err error)
	QuotaResource() string
}

// Options configures a Governor.
type Options struct {
	// StatusURL is the rate_limit_status endpoint.
	StatusURL string

	// Retry is the 503 policy for status requests.
	Retry client.RetryConfig

	// Margin is added to every wait for a window reset.
	Margin time.Duration

	// Store receives every observed state; nil means a MemoryStore.
	Store Store

	Now   func() time.Time
	Sleep client.SleepFunc

	Logger *zerolog.Logger
}

// DefaultOptions returns the options for a provider rooted at baseURL.
func DefaultOptions(baseURL string) Options {
	return Options{
		StatusURL: strings.TrimRight(baseURL, "/") + "/application/rate_limit_status.json",
		Retry:     client.DefaultRetryConfig(),
		Margin:    DefaultMargin,
		Now:       time.Now,
		Sleep:     client.Sleep,
	}
}

// Governor blocks a collection while its resource has no quota left.
// It is owned by a single collection and is not safe for concurrent use.
type Governor struct {
	session client.Session
	source  QuotaSource
	opts    Options
	logger  zerolog.Logger
}

// NewGovernor creates a governor for the given quota source.
func NewGovernor(session client.Session, source QuotaSource, opts Options) *Governor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = client.Sleep
	}
	if opts.Retry.Sleep == nil {
		opts.Retry.Sleep = opts.Sleep
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Margin < 0 {
		opts.Margin = 0
	}

	base := logging.NewLogger(logging.ComponentRateLimit)
	if opts.Logger != nil {
		base = *opts.Logger
	}
	logger := base.With().Str("resource", source.QuotaResource()).Logger()

	return &Governor{
		session: session,
		source:  source,
		opts:    opts,
		logger:  logger,
	}
}

// CheckLimit queries the rate_limit_status endpoint and returns once the
// resource has quota left, waiting for window resets as needed. 503 responses
// are retried; other failures and a payload without the resource's entry are
// fatal.
func (g *Governor) CheckLimit(ctx context.Context) error {
	for {
		state, err := g.Status(ctx)
		if err != nil {
			return fmt.Errorf("check limit: %w", err)
		}
		if !state.Exhausted() {
			return nil
		}
		if err := g.WaitUntilReset(ctx, state.ResetAt); err != nil {
			return err
		}
	}
}

// Status fetches and records the current quota once, without waiting.
func (g *Governor) Status(ctx context.Context) (QuotaState, error) {
	resp, err := client.GetWithRetry(ctx, g.session, g.opts.StatusURL, nil, g.opts.Retry)
	if err != nil {
		return QuotaState{}, err
	}

	remaining, resetAt, err := g.source.ExtractQuota(resp.Body)
	if err != nil {
		g.logger.Error().Err(err).Msg("Quota status payload rejected")
		return QuotaState{}, err
	}

	state := QuotaState{
		Resource:   g.source.QuotaResource(),
		Remaining:  remaining,
		ResetAt:    resetAt,
		LastUpdate: g.opts.Now(),
	}
	g.record(ctx, state)
	return state, nil
}

// WaitUntilReset blocks until resetAt plus the safety margin. A resetAt in
// the past waits only the margin.
func (g *Governor) WaitUntilReset(ctx context.Context, resetAt time.Time) error {
	untilReset := resetAt.Sub(g.opts.Now())
	if untilReset < 0 {
		untilReset = 0
	}
	wait := untilReset + g.opts.Margin

	g.logger.Warn().
		Time("reset_at", resetAt).
		Dur("wait", wait).
		Msg("Quota exhausted, waiting for window reset")

	quotaWaitsTotal.WithLabelValues(g.source.QuotaResource()).Inc()
	quotaWaitSeconds.Observe(wait.Seconds())

	if err := g.opts.Sleep(ctx, wait); err != nil {
		return fmt.Errorf("wait for quota reset: %w", err)
	}
	return nil
}

// Observe reads the quota headers of a data response. ok is false when the
// headers are missing or unreadable, in which case callers should fall back
// to CheckLimit.
func (g *Governor) Observe(ctx context.Context, headers http.Header) (QuotaState, bool) {
	state, ok, err := ParseHeaders(headers, g.source.QuotaResource(), g.opts.Now())
	if err != nil {
		g.logger.Warn().Err(err).Msg("Failed to parse quota headers")
		return QuotaState{}, false
	}
	if !ok {
		g.logger.Debug().Msg("Quota headers missing")
		return QuotaState{}, false
	}

	g.record(ctx, state)
	return state, true
}

func (g *Governor) record(ctx context.Context, state QuotaState) {
	quotaRemaining.WithLabelValues(state.Resource).Set(float64(state.Remaining))

	if err := g.opts.Store.Save(ctx, state); err != nil {
		g.logger.Warn().Err(err).Msg("Failed to store quota state")
	}

	event := g.logger.Debug()
	if state.Exhausted() {
		event = g.logger.Info()
	}
	event.
		Int("remaining", state.Remaining).
		Time("reset_at", state.ResetAt).
		Msg("Quota state updated")
}
