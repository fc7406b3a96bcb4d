package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_retries_total",
		Help: "Total number of retry attempts by endpoint",
	}, []string{"endpoint"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by endpoint",
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_errors_total",
		Help: "Total fatal provider errors by class",
	}, []string{"class"})
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryConfig holds the transient-failure policy. Only 503 is retried, with
// a fixed pause between attempts.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial request.
	MaxRetries int

	// Backoff is the fixed pause before each retry.
	Backoff time.Duration

	// Sleep is used for the pause; nil means Sleep.
	Sleep SleepFunc
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 10,
		Backoff:    30 * time.Second,
		Sleep:      Sleep,
	}
}

// GetWithRetry issues a GET through s and returns the first 200 response.
// 503 responses are retried up to cfg.MaxRetries times; once exhausted the
// call fails with ErrProviderUnavailable. Any other non-200 status fails
// immediately with *ProviderError. Transport errors are not retried.
func GetWithRetry(ctx context.Context, s Session, rawURL string, params url.Values, cfg RetryConfig) (*Response, error) {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	endpoint := endpointOf(rawURL)

	for attempt := 0; ; attempt++ {
		resp, err := s.Get(ctx, rawURL, params)
		if err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return nil, err
		}

		if resp.StatusCode == http.StatusOK {
			if attempt > 0 {
				log.Info().
					Str("endpoint", endpoint).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		}

		if !IsTransient(resp.StatusCode) {
			class := classifyStatus(resp.StatusCode)
			errorsTotal.WithLabelValues(string(class)).Inc()
			log.Error().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(class)).
				Msg("Provider request failed")
			return nil, &ProviderError{StatusCode: resp.StatusCode, Endpoint: endpoint}
		}

		if attempt >= cfg.MaxRetries {
			retryExhaustedTotal.WithLabelValues(endpoint).Inc()
			errorsTotal.WithLabelValues(string(ErrorClassUnavailable)).Inc()
			log.Error().
				Str("endpoint", endpoint).
				Int("max_retries", cfg.MaxRetries).
				Msg("Retry attempts exhausted")
			return nil, fmt.Errorf("%w: %s still 503 after %d retries", ErrProviderUnavailable, endpoint, cfg.MaxRetries)
		}

		retriesTotal.WithLabelValues(endpoint).Inc()
		log.Warn().
			Str("endpoint", endpoint).
			Int("attempt", attempt+1).
			Dur("backoff", cfg.Backoff).
			Msg("Service unavailable, retrying after backoff")

		if err := sleep(ctx, cfg.Backoff); err != nil {
			return nil, fmt.Errorf("retry backoff: %w", err)
		}
	}
}

func endpointOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}
