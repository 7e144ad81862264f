package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/lnbridge/internal/core/domain"
)

// DefaultStream is the stream node events are appended to.
const DefaultStream = "lnbridge:events"

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// streamer is the part of *redis.Client the stream writer needs.
type streamer interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Client appends node events to a Redis stream.
type Client struct {
	rdb    streamer
	stream string
	maxLen int64
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newClient(rdb, cfg), nil
}

func newClient(rdb streamer, cfg Config) *Client {
	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return &Client{rdb: rdb, stream: stream, maxLen: cfg.MaxLen}
}

// Name identifies the client in sink metrics.
func (c *Client) Name() string {
	return "redis"
}

// Write appends ev to the stream, trimming it to roughly MaxLen entries.
func (c *Client) Write(ctx context.Context, ev domain.Event) error {
	payload, err := domain.MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Kind(), err)
	}

	args := &redis.XAddArgs{
		Stream: c.stream,
		Values: map[string]any{
			"kind":        ev.Kind().String(),
			"payload":     string(payload),
			"received_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	if c.maxLen > 0 {
		args.MaxLen = c.maxLen
		args.Approx = true
	}
	if err := c.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
