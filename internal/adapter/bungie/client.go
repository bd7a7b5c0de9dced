package bungie

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

const (
	defaultBaseURL      = "https://www.bungie.net"
	defaultManifestPath = "/Platform/Destiny2/Manifest/"
)

// PayloadSink receives every raw response body before it is parsed.
// Save failures never fail a fetch.
type PayloadSink interface {
	Save(ctx context.Context, name string, body []byte) error
}

// Options configures a Client. Zero values fall back to the public Bungie API,
// no timeout, no proxy and a single attempt per request.
type Options struct {
	BaseURL      string
	ManifestPath string
	APIKey       string

	Timeout        time.Duration
	UseSystemProxy bool

	RetryAttempts        int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// Client downloads the manifest and per-locale definition payloads.
// It is safe for concurrent use.
type Client struct {
	baseURL      string
	manifestPath string
	apiKey       string

	attempts        int
	initialInterval time.Duration
	maxInterval     time.Duration

	httpClient *http.Client
	sink       PayloadSink
	log        *slog.Logger
}

// NewClient creates a Client. sink may be nil.
func NewClient(opts Options, sink PayloadSink, logger *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.ManifestPath == "" {
		opts.ManifestPath = defaultManifestPath
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if opts.UseSystemProxy {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &Client{
		baseURL:         opts.BaseURL,
		manifestPath:    opts.ManifestPath,
		apiKey:          opts.APIKey,
		attempts:        opts.RetryAttempts,
		initialInterval: opts.RetryInitialInterval,
		maxInterval:     opts.RetryMaxInterval,
		httpClient:      &http.Client{Timeout: opts.Timeout, Transport: transport},
		sink:            sink,
		log:             logger.With("adapter", "bungie"),
	}
}

// statusError is a non-2xx response.
type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// get downloads url completely. Network errors and 5xx are retried up to the
// configured number of attempts; 4xx fails at once.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var (
		body    []byte
		attempt int
	)

	op := func() error {
		attempt++

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, resp.Body)
			serr := &statusError{Code: resp.StatusCode}
			if resp.StatusCode >= 500 {
				return serr
			}
			return backoff.Permanent(serr)
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		body = b
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.log.WarnContext(ctx, "bungie retry",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	if err := backoff.RetryNotify(op, c.backoff(ctx), notify); err != nil {
		return nil, fmt.Errorf("bungie: get %s: %w: %w", url, domain.ErrNetwork, err)
	}
	return body, nil
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if c.initialInterval > 0 {
		exp.InitialInterval = c.initialInterval
	}
	if c.maxInterval > 0 {
		exp.MaxInterval = c.maxInterval
	}
	exp.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.attempts-1)), ctx)
}

// save hands body to the sink. Errors are logged only.
func (c *Client) save(ctx context.Context, name string, body []byte) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Save(ctx, name, body); err != nil {
		c.log.WarnContext(ctx, "save payload failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
	}
}
