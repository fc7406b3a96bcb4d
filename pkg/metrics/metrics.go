// Package metrics exposes the collector's Prometheus metrics over HTTP.
// Metrics are defined in their respective packages (client, ratelimit,
// collector) and registered with the default registry via promauto.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/timeline-collector/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Paths served by Handler.
const (
	PathMetrics = "/metrics"
	PathHealth  = "/health"
)

const shutdownTimeout = 5 * time.Second

// Handler returns a mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(PathMetrics, promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc(PathHealth, healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Serve runs the metrics server on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	logger := logging.NewLogger("metrics")
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - timeline_requests_total{endpoint, status} (Counter): Provider requests by endpoint and HTTP status
//   - timeline_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - timeline_errors_total{class} (Counter): Fatal errors by class (unavailable, client, server, network)
//
// Retry Metrics (pkg/client):
//   - timeline_retries_total{endpoint} (Counter): 503 retries by endpoint
//   - timeline_retry_exhausted_total{endpoint} (Counter): Requests still 503 after the last retry
//
// Quota Metrics (pkg/ratelimit):
//   - timeline_quota_remaining{resource} (Gauge): Requests left in the current window
//   - timeline_quota_waits_total{resource} (Counter): Waits for a window reset
//   - timeline_quota_wait_seconds (Histogram): Time spent waiting for resets
//
// Collection Metrics (pkg/collector):
//   - timeline_items_emitted_total{variant} (Counter): Items yielded to consumers
//   - timeline_reshares_skipped_total{variant} (Counter): Reshares filtered out
//   - timeline_pages_fetched_total{variant} (Counter): Data pages fetched
//
// Example Prometheus Queries:
//
//   # Items per minute
//   sum(rate(timeline_items_emitted_total[1m])) * 60
//
//   # Share of time spent waiting for quota
//   rate(timeline_quota_wait_seconds_sum[15m])
//
//   # Provider instability
//   rate(timeline_retries_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(timeline_request_duration_seconds_bucket[5m]))
