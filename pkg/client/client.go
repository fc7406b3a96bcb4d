// Package client provides the signed HTTP session used to talk to the
// timeline provider, plus the shared retry policy for transient failures.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/timeline-collector/pkg/logging"
	"github.com/dghubble/oauth1"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for provider requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_requests_total",
		Help: "Total provider requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timeline_request_duration_seconds",
		Help:    "Provider request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})
)

// DefaultBaseURL is the provider's REST API root.
const DefaultBaseURL = "https://api.twitter.com/1.1"

// Session is the capability the collector needs from an authenticated
// connection: a signed GET returning the raw response.
type Session interface {
	Get(ctx context.Context, rawURL string, params url.Values) (*Response, error)
}

// Response is a fully read provider response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Credentials are the four OAuth1 user-context secrets.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Config holds the client configuration.
type Config struct {
	Credentials Credentials

	// Timeout per HTTP request
	Timeout time.Duration

	// UserAgent is optional; the provider does not require one.
	UserAgent string
}

// DefaultConfig returns a default configuration for the given credentials.
func DefaultConfig(creds Credentials) Config {
	return Config{
		Credentials: creds,
		Timeout:     30 * time.Second,
	}
}

// Client is an OAuth1-signed Session. It is created once per process run and
// never mutated afterwards, except through SetHTTPClient in tests.
type Client struct {
	httpClient *http.Client
	oauth      *oauth1.Config
	token      *oauth1.Token
	config     Config
	logger     zerolog.Logger
}

// New creates a new signed client.
func New(cfg Config) (*Client, error) {
	creds := cfg.Credentials
	switch {
	case creds.ConsumerKey == "":
		return nil, fmt.Errorf("%w: consumer key", ErrMissingCredentials)
	case creds.ConsumerSecret == "":
		return nil, fmt.Errorf("%w: consumer secret", ErrMissingCredentials)
	case creds.AccessToken == "":
		return nil, fmt.Errorf("%w: access token", ErrMissingCredentials)
	case creds.AccessSecret == "":
		return nil, fmt.Errorf("%w: access secret", ErrMissingCredentials)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		oauth:  oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret),
		token:  oauth1.NewToken(creds.AccessToken, creds.AccessSecret),
		config: cfg,
		logger: logging.NewLogger(logging.ComponentClient),
	}
	c.SetHTTPClient(&http.Client{})

	return c, nil
}

// SetHTTPClient sets the base HTTP client whose transport carries the signed
// requests (for testing). Signing is always layered on top.
func (c *Client) SetHTTPClient(base *http.Client) {
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, base)
	signed := c.oauth.Client(ctx, c.token)
	signed.Timeout = c.config.Timeout
	c.httpClient = signed
}

// Get performs a signed GET request and reads the whole body.
// Non-200 statuses are returned as-is; classifying them is up to the caller.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for key, values := range params {
			q[key] = values
		}
		u.RawQuery = q.Encode()
	}
	endpoint := u.Path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", u.RawQuery).
		Msg("Executing provider request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, fmt.Errorf("read response body: %w", err)
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
