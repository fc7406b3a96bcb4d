// Package collector streams posts from a paginated, rate-limited provider
// endpoint as a lazy sequence. It combines a pagination.PageFetcher with a
// ratelimit.Governor: quota is checked before the first request and after
// every page, pages are requested backwards through the max-id cursor, and
// the sequence ends when the provider returns an empty page.
package collector

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/Sternrassler/timeline-collector/pkg/client"
	"github.com/Sternrassler/timeline-collector/pkg/logging"
	"github.com/Sternrassler/timeline-collector/pkg/pagination"
	"github.com/Sternrassler/timeline-collector/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for collection runs.
var (
	itemsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_items_emitted_total",
		Help: "Total number of items yielded to consumers by variant",
	}, []string{"variant"})

	resharesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_reshares_skipped_total",
		Help: "Total number of reshare items filtered out by variant",
	}, []string{"variant"})

	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_pages_fetched_total",
		Help: "Total number of data pages fetched by variant",
	}, []string{"variant"})
)

// ParamIncludeReshares is the request parameter fixing reshare inclusion for
// a run.
const ParamIncludeReshares = "include_rts"

// DefaultProgressEvery is how many emitted items pass between progress logs.
const DefaultProgressEvery = 10000

// Config holds collector configuration.
type Config struct {
	// BaseURL is the provider API root (e.g. https://api.twitter.com/1.1).
	BaseURL string

	// Retry is the 503 policy for data and quota requests.
	Retry client.RetryConfig

	// Margin is added to every quota reset wait.
	Margin time.Duration

	// Store receives quota snapshots; nil means a private MemoryStore per run.
	Store ratelimit.Store

	// ProgressEvery logs a progress line every N emitted items (0 disables).
	ProgressEvery int

	Now   func() time.Time
	Sleep client.SleepFunc

	Logger *zerolog.Logger
}

// DefaultConfig returns the default collector configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:       client.DefaultBaseURL,
		Retry:         client.DefaultRetryConfig(),
		Margin:        ratelimit.DefaultMargin,
		ProgressEvery: DefaultProgressEvery,
		Now:           time.Now,
		Sleep:         client.Sleep,
	}
}

// Options select what one run yields.
type Options struct {
	// Total caps the number of emitted items. Zero or negative means
	// unbounded: the run ends only on an empty page.
	Total int

	// IncludeReshares keeps reshare items in the sequence. Skipped reshares
	// do not count toward Total.
	IncludeReshares bool
}

// Collector runs collections against one endpoint for one subject.
// A Collector is not safe for concurrent runs.
type Collector struct {
	session client.Session
	fetcher pagination.PageFetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a collector for an already configured fetcher.
func New(session client.Session, fetcher pagination.PageFetcher, cfg Config) *Collector {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = client.Sleep
	}
	if cfg.Retry.Sleep == nil {
		cfg.Retry.Sleep = cfg.Sleep
	}

	logger := logging.NewLogger(logging.ComponentCollector)
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Collector{
		session: session,
		fetcher: fetcher,
		config:  cfg,
		logger:  logger.With().Str("variant", fetcher.Name()).Logger(),
	}
}

// BySearch creates a collector over search results for query.
func BySearch(session client.Session, query string, cfg Config) (*Collector, error) {
	fetcher, err := pagination.NewSearchFetcher(baseURL(cfg), query)
	if err != nil {
		return nil, err
	}
	return New(session, fetcher, cfg), nil
}

// ByUser creates a collector over the timeline of handle.
func ByUser(session client.Session, handle string, cfg Config) (*Collector, error) {
	fetcher, err := pagination.NewUserFetcher(baseURL(cfg), handle)
	if err != nil {
		return nil, err
	}
	return New(session, fetcher, cfg), nil
}

func baseURL(cfg Config) string {
	if cfg.BaseURL == "" {
		return client.DefaultBaseURL
	}
	return cfg.BaseURL
}

// Collect returns the lazy sequence of items. Nothing is requested until the
// sequence is ranged over. A fatal error is yielded once as the final element.
// Breaking out of the loop stops the run; no request outlives the loop body.
func (c *Collector) Collect(ctx context.Context, opts Options) iter.Seq2[pagination.Item, error] {
	return func(yield func(pagination.Item, error) bool) {
		err := c.run(ctx, opts, func(item pagination.Item) bool {
			return yield(item, nil)
		})
		if err != nil {
			yield(pagination.Item{}, err)
		}
	}
}

// Texts is Collect reduced to item texts.
func (c *Collector) Texts(ctx context.Context, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for item, err := range c.Collect(ctx, opts) {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(item.Text, nil) {
				return
			}
		}
	}
}

// Quota fetches the current quota of the collector's endpoint without waiting
// for a reset.
func (c *Collector) Quota(ctx context.Context) (ratelimit.QuotaState, error) {
	return c.governor(c.logger).Status(ctx)
}

func (c *Collector) governor(logger zerolog.Logger) *ratelimit.Governor {
	return newGovernor(c.session, c.fetcher, c.config, logger)
}

// NewGovernor creates a quota governor for source with the collector's retry,
// margin, store and clock settings. It serves quota lookups that need no
// collection subject.
func NewGovernor(session client.Session, source ratelimit.QuotaSource, cfg Config) *ratelimit.Governor {
	logger := logging.NewLogger(logging.ComponentRateLimit)
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return newGovernor(session, source, cfg, logger)
}

func newGovernor(session client.Session, source ratelimit.QuotaSource, cfg Config, logger zerolog.Logger) *ratelimit.Governor {
	opts := ratelimit.DefaultOptions(baseURL(cfg))
	opts.Retry = cfg.Retry
	opts.Margin = cfg.Margin
	opts.Store = cfg.Store
	opts.Now = cfg.Now
	opts.Sleep = cfg.Sleep
	opts.Logger = &logger
	return ratelimit.NewGovernor(session, source, opts)
}

// run executes one collection, handing accepted items to emit. It returns nil
// when the data ends, the cap is reached or emit asks to stop.
func (c *Collector) run(ctx context.Context, opts Options, emit func(pagination.Item) bool) error {
	variant := c.fetcher.Name()
	logger := c.logger.With().Str("run_id", uuid.NewString()).Logger()
	gov := c.governor(logger)

	logger.Info().
		Int("total", opts.Total).
		Bool("include_reshares", opts.IncludeReshares).
		Msg("Collection started")

	if err := gov.CheckLimit(ctx); err != nil {
		return err
	}

	base, err := c.fetcher.BuildRequest()
	if err != nil {
		return err
	}
	req := base.Clone()
	req.Params.Set(ParamIncludeReshares, strconv.FormatBool(opts.IncludeReshares))

	var cursor pagination.Cursor
	emitted := 0
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := client.GetWithRetry(ctx, c.session, req.URL, req.Params, c.config.Retry)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", pages+1, err)
		}

		items, err := c.fetcher.ExtractItems(resp.Body)
		if err != nil {
			return fmt.Errorf("page %d: %w", pages+1, err)
		}
		pages++
		pagesFetchedTotal.WithLabelValues(variant).Inc()

		if len(items) == 0 {
			logger.Info().
				Int("emitted", emitted).
				Int("pages", pages).
				Msg("Collection finished")
			return nil
		}

		for _, item := range items {
			if item.Reshare && !opts.IncludeReshares {
				resharesSkippedTotal.WithLabelValues(variant).Inc()
				continue
			}

			if !emit(item) {
				logger.Debug().Int("emitted", emitted).Msg("Consumer stopped collection")
				return nil
			}
			emitted++
			itemsEmittedTotal.WithLabelValues(variant).Inc()

			if c.config.ProgressEvery > 0 && emitted%c.config.ProgressEvery == 0 {
				logger.Info().Int("emitted", emitted).Msg("Collection progress")
			}
			if opts.Total > 0 && emitted >= opts.Total {
				logger.Info().
					Int("emitted", emitted).
					Int("pages", pages).
					Msg("Collection reached total")
				return nil
			}
		}

		if err := cursor.Advance(items); err != nil {
			return err
		}
		cursor.Apply(req.Params)

		state, ok := gov.Observe(ctx, resp.Header)
		switch {
		case !ok:
			if err := gov.CheckLimit(ctx); err != nil {
				return err
			}
		case state.Exhausted():
			if err := gov.WaitUntilReset(ctx, state.ResetAt); err != nil {
				return err
			}
			if err := gov.CheckLimit(ctx); err != nil {
				return err
			}
		}
	}
}
