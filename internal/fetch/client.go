// Package fetch implements the retrying HTTP client used for all source
// traffic. It knows nothing about payload semantics: callers get back raw
// bytes (or a stream) accepted only at exact status 200.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Error is returned after retry exhaustion. It never escapes this layer
// as a panic; callers decide whether the failure is target-fatal.
type Error struct {
	URL        string
	Attempts   int
	LastStatus int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s failed after %d attempts, last status %d", e.URL, e.Attempts, e.LastStatus)
}

func (e *Error) Unwrap() error { return e.Err }

// Config controls Client behavior.
type Config struct {
	ProxyURL      string
	AppID         string
	Timeout       time.Duration
	StreamTimeout time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	RatePerSecond float64
	RateBurst     int
}

// Options modify a single Fetch call.
type Options struct {
	// Stream returns the response body as a reader instead of buffering
	// it, using the long media timeout. The caller owns the close.
	Stream bool
}

// Response is the result of a successful fetch. Exactly one of Body and
// Stream is set, depending on Options.Stream.
type Response struct {
	StatusCode int
	Body       []byte
	Stream     io.ReadCloser
}

// Client issues rate-limited, retrying GETs through the configured proxy
// using a browser impersonation fingerprint.
type Client struct {
	client       *http.Client
	streamClient *http.Client
	headers      map[string]string
	limiter      *rate.Limiter
	maxRetries   int
	backoffBase  time.Duration
	logger       *zap.Logger
}

// New constructs a Client. An empty ProxyURL disables proxying, which is
// only useful in tests.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 300 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		client:       &http.Client{Transport: transport, Timeout: cfg.Timeout},
		streamClient: &http.Client{Transport: transport, Timeout: cfg.StreamTimeout},
		headers:      impersonationHeaders(cfg.AppID),
		limiter:      rate.NewLimiter(limit, burst),
		maxRetries:   cfg.MaxRetries,
		backoffBase:  cfg.BackoffBase,
		logger:       logger,
	}, nil
}

// Fetch GETs rawURL, retrying up to the configured bound on connection
// errors, timeouts, and any non-200 status. A 429 backs off linearly with
// the attempt count; other failures retry immediately. Exhausting the
// bound returns *Error.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	httpClient := c.client
	if opts.Stream {
		httpClient = c.streamClient
	}

	var lastStatus int
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{URL: rawURL, Attempts: attempt, LastStatus: lastStatus, Err: err}
		}

		resp, err := c.attempt(ctx, httpClient, rawURL)
		if err != nil {
			lastErr = err
			c.logger.Debug("fetch attempt failed",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return nil, &Error{URL: rawURL, Attempts: attempt, LastStatus: lastStatus, Err: ctx.Err()}
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			if opts.Stream {
				return &Response{StatusCode: resp.StatusCode, Stream: resp.Body}, nil
			}
			body, readErr := io.ReadAll(resp.Body)
			closeErr := resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("read body: %w", readErr)
				continue
			}
			if closeErr != nil {
				c.logger.Warn("close response body", zap.String("url", rawURL), zap.Error(closeErr))
			}
			return &Response{StatusCode: resp.StatusCode, Body: body}, nil
		}

		lastStatus = resp.StatusCode
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("close response body", zap.String("url", rawURL), zap.Error(err))
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.Warn("rate limited by source",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
			)
			if err := sleepCtx(ctx, time.Duration(attempt)*c.backoffBase); err != nil {
				return nil, &Error{URL: rawURL, Attempts: attempt, LastStatus: lastStatus, Err: err}
			}
		}
	}

	return nil, &Error{URL: rawURL, Attempts: c.maxRetries, LastStatus: lastStatus, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, httpClient *http.Client, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
