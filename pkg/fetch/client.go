// Package fetch is the HTTP collaborator used by endpoint discovery.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/logging"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/retry"
)

// DefaultTimeout is the per-request timeout when none is configured.
const DefaultTimeout = 30 * time.Second

// DefaultMaxBodyBytes caps a single response body.
const DefaultMaxBodyBytes = 64 << 20

// Fetcher retrieves one URL.
type Fetcher interface {
	// Fetch returns the response for any status the server answered with.
	// An error is returned for transport failures and for retryable statuses
	// (429, 5xx) that persisted through every retry; the last result is still
	// returned alongside a status error.
	Fetch(ctx context.Context, url string) (*models.FetchResult, error)
}

// StatusError reports an HTTP status the client treats as a failure.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", logging.SanitizeURL(e.URL), e.StatusCode)
}

// IsRetryable implements retry.RetryableError: rate limiting and server errors are transient.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Unwrap lets callers match apperrors.ErrHTTPStatus.
func (e *StatusError) Unwrap() error {
	return apperrors.ErrHTTPStatus
}

// Config configures a Client.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	Retry        *retry.Config
}

// Client is a Fetcher over net/http with exponential backoff.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	maxBodyBytes int64
	retry        *retry.Config
	logger       *zap.Logger
}

var _ Fetcher = (*Client)(nil)

// NewClient creates a new fetch client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
		retry:        cfg.Retry,
		logger:       logger.Named("fetch"),
	}
}

func (c *Client) Fetch(ctx context.Context, url string) (*models.FetchResult, error) {
	start := time.Now()
	attempts := 0

	result, err := retry.DoIfRetryable(ctx, c.retry, func() (*models.FetchResult, error) {
		attempts++
		return c.do(ctx, url)
	})
	if result != nil {
		result.ElapsedSeconds = time.Since(start).Seconds()
	}

	if err != nil {
		c.logger.Warn("Fetch failed",
			zap.String("url", logging.SanitizeURL(url)),
			zap.Int("attempts", attempts),
			zap.String("error", logging.SanitizeError(err)))
		return result, fmt.Errorf("fetch %s: %w", logging.SanitizeURL(url), err)
	}

	c.logger.Debug("Fetched",
		zap.String("url", logging.SanitizeURL(url)),
		zap.Int("status", result.HTTPStatus),
		zap.Int("bytes", len(result.Body)),
		zap.Int("attempts", attempts))

	return result, nil
}

// do performs a single attempt.
func (c *Client) do(ctx context.Context, url string) (*models.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", c.maxBodyBytes)
	}

	result := &models.FetchResult{
		URL:         url,
		Body:        body,
		HTTPStatus:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode}
	if statusErr.IsRetryable() {
		return result, statusErr
	}
	return result, nil
}

// AsStatusError extracts the StatusError from err, if any.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
