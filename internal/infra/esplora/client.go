// Package esplora is a minimal REST client for the chain source the node syncs from.
package esplora

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnavailable wraps transport failures and unexpected responses.
	ErrUnavailable = errors.New("esplora unavailable")
	// ErrRateLimited is returned while the server asks us to back off.
	ErrRateLimited = errors.New("esplora rate limited")
)

// Stats summarizes request outcomes.
type Stats struct {
	Requests      int
	Failures      int
	ErrorRate     float64
	AvgLatency    time.Duration
	LastSuccessAt time.Time
	LastFailureAt time.Time
	ThrottledTill time.Time
}

// Client talks to an Esplora HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu           sync.Mutex
	stats        Stats
	totalLatency time.Duration
}

// NewClient creates a client for baseURL (ie http://localhost:3002).
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// TipHeight returns the height of the best block.
func (c *Client) TipHeight(ctx context.Context) (uint64, error) {
	body, err := c.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	h, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse tip height %q", ErrUnavailable, body)
	}
	return h, nil
}

// TipHash returns the hash of the best block.
func (c *Client) TipHash(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/blocks/tip/hash")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// Health probes the tip height.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.TipHeight(ctx)
	return err
}

// Stats returns a snapshot of request outcomes.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if till := c.Stats().ThrottledTill; time.Now().Before(till) {
		return nil, fmt.Errorf("%w: retry after %s", ErrRateLimited, time.Until(till).Round(time.Second))
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("%w: GET %s: %v", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.recordThrottle(resp.Header.Get("Retry-After"))
		return nil, ErrRateLimited
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.recordFailure()
		return nil, fmt.Errorf("%w: http %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.recordSuccess(time.Since(start))
	return body, nil
}

func (c *Client) recordSuccess(latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Requests++
	c.totalLatency += latency
	c.stats.LastSuccessAt = time.Now()
	c.stats.ThrottledTill = time.Time{}
	c.refresh()
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Requests++
	c.stats.Failures++
	c.stats.LastFailureAt = time.Now()
	c.refresh()
}

// recordThrottle honors Retry-After in seconds, defaulting to 30s.
func (c *Client) recordThrottle(retryAfter string) {
	wait := 30 * time.Second
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		wait = time.Duration(secs) * time.Second
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Requests++
	c.stats.Failures++
	c.stats.LastFailureAt = time.Now()
	c.stats.ThrottledTill = time.Now().Add(wait)
	c.refresh()
}

// refresh must be called with mu held.
func (c *Client) refresh() {
	c.stats.ErrorRate = float64(c.stats.Failures) / float64(c.stats.Requests)
	if ok := c.stats.Requests - c.stats.Failures; ok > 0 {
		c.stats.AvgLatency = c.totalLatency / time.Duration(ok)
	}
}
