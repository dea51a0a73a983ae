package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/framesift/internal/config"
	"github.com/kikiluvv/framesift/internal/metrics"
)

// ErrFetchFailed is returned once every retry has been used up
var ErrFetchFailed = errors.New("fetch failed")

// Client fetches raw frame bytes over HTTP with bounded retries
type Client struct {
	logger     zerolog.Logger
	http       *http.Client
	retries    int
	retryDelay time.Duration
}

// NewClient creates a fetch client from the fetch settings
func NewClient(logger zerolog.Logger, cfg config.FetchConfig) *Client {
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	return &Client{
		logger:     logger.With().Str("component", "fetch").Logger(),
		http:       &http.Client{Timeout: cfg.Timeout},
		retries:    retries,
		retryDelay: cfg.RetryDelay,
	}
}

// Get fetches url using the default retry policy
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.GetWithRetry(ctx, url, c.retries, c.retryDelay)
}

// GetWithRetry fetches url, retrying transport errors and non-200 responses
// up to attempts times with delay in between.
func (c *Client) GetWithRetry(ctx context.Context, url string, attempts int, delay time.Duration) ([]byte, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Debug().
			Str("url", url).
			Int("attempt", attempt).
			Int("max", attempts).
			Msg("fetching")

		data, err := c.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		c.logger.Warn().Err(err).Str("url", url).Int("attempt", attempt).Msg("fetch failed")

		if attempt < attempts {
			metrics.FetchRetriesTotal.WithLabelValues(strconv.Itoa(attempt)).Inc()
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	c.logger.Warn().Str("url", url).Int("attempts", attempts).Msg("giving up on fetch")
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrFetchFailed, url, attempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
