// Package fetch is the shared network layer for image downloads and emoji
// asset retrieval. Every request carries an explicit timeout, a fixed retry
// budget, and passes through a token-bucket rate limiter; there is no
// unbounded retry anywhere.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
)

// Sentinel errors for fetch operations.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrUnexpected = errors.New("unexpected response status")
	ErrTooLarge   = errors.New("response exceeds size limit")
)

// Defaults for the retry/fallback chain.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second

	// MaxBodySize caps a single download. Anything a document would embed
	// fits well under this.
	MaxBodySize = 32 << 20

	defaultRatePerSecond = 8.0
	defaultBurst         = 5
)

// Client performs rate-limited HTTP downloads with retries.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	retries int
	delay   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRetries sets the retry budget per Get.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// WithRateLimit replaces the default request rate.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// New creates a Client with conservative defaults.
func New(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultBurst),
		retries: DefaultRetries,
		delay:   DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get downloads url and returns the body and Content-Type. A 404 returns
// ErrNotFound without retrying; transport errors and 5xx responses retry up
// to the budget with a fixed delay.
func (c *Client) Get(ctx context.Context, url string) ([]byte, string, error) {
	var lastErr error

	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(c.delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}

		body, contentType, err := c.get(ctx, url)
		if err == nil {
			return body, contentType, nil
		}
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return nil, "", err
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("downloading %s: %w", url, lastErr)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, url)
	default:
		return nil, "", fmt.Errorf("%w: %d from %s", ErrUnexpected, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, "", err
	}
	if len(body) > MaxBodySize {
		return nil, "", fmt.Errorf("%w: %s", ErrTooLarge, url)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// GetFile downloads url into destPath. The body lands in a temp file first
// and is renamed into place, so concurrent writers of the same cache entry
// never expose a partial file.
func (c *Client) GetFile(ctx context.Context, url, destPath string) (string, error) {
	body, contentType, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("creating staging file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("writing download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("closing download: %w", err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("publishing download: %w", err)
	}
	return contentType, nil
}
