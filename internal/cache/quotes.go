// Package cache publishes the latest quote of every order book to Redis so
// that external readers can follow prices without querying the simulation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talgya/mini-economy/internal/engine"
)

// Publisher receives the quotes of every book once per simulated day.
type Publisher interface {
	Publish(ctx context.Context, quotes []engine.Quote) error
	Close() error
}

// Nop is a Publisher that discards quotes. Used when Redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, []engine.Quote) error { return nil }
func (Nop) Close() error                                  { return nil }

// QuoteKey returns the cache key of a book, e.g. "quote:EUR/good:grain".
func QuoteKey(book string) string { return "quote:" + book }

// RedisPublisher stores quotes in Redis with a TTL.
type RedisPublisher struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisPublisher connects to redisURL and verifies the connection.
func NewRedisPublisher(redisURL, redisPassword string, ttl time.Duration, logger *slog.Logger) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if redisPassword != "" {
		opt.Password = redisPassword
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisPublisher{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "quote_publisher"),
	}, nil
}

// Publish writes every quote under QuoteKey in one pipeline.
func (p *RedisPublisher) Publish(ctx context.Context, quotes []engine.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	start := time.Now()

	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, q := range quotes {
			b, err := json.Marshal(q)
			if err != nil {
				return fmt.Errorf("json marshal %s: %w", q.Book, err)
			}
			pipe.Set(ctx, QuoteKey(q.Book), b, p.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}

	p.logger.Debug("quotes cached",
		"books", len(quotes),
		"ttl_sec", p.ttl.Seconds(),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
