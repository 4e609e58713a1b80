// Package stream publishes usage events to a Redis stream and keeps daily
// counters next to it.
package stream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	defaultStream = "tokbot:usage"
	defaultMaxLen = 100_000
	dailyTTL      = 8 * 24 * time.Hour
)

// Publisher implements domain.UsageRecorder on a Redis stream.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithStream sets the stream key. Daily counters live under "<stream>:daily:<date>".
func WithStream(stream string) Option {
	return func(p *Publisher) {
		if stream != "" {
			p.stream = stream
		}
	}
}

// WithMaxLen caps the stream length. Zero leaves the stream untrimmed.
func WithMaxLen(n int64) Option {
	return func(p *Publisher) {
		p.maxLen = n
	}
}

// NewPublisher creates a Publisher on an existing client.
func NewPublisher(client *redis.Client, opts ...Option) *Publisher {
	p := &Publisher{client: client, stream: defaultStream, maxLen: defaultMaxLen}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dial parses a redis:// URL and checks the server answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Record appends the event to the stream and bumps the day's counters in one round-trip.
func (p *Publisher) Record(ctx context.Context, ev domain.UsageEvent) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Values: map[string]any{
			"user_id":         strconv.FormatInt(ev.UserID, 10),
			"url":             ev.URL,
			"kind":            ev.Kind,
			"provider":        ev.Provider,
			"success":         strconv.FormatBool(ev.Success),
			"file_size":       strconv.FormatInt(ev.FileSize, 10),
			"item_count":      strconv.Itoa(ev.ItemCount),
			"error":           ev.ErrorMessage,
			"processing_time": strconv.FormatFloat(ev.ProcessingTime.Seconds(), 'f', 3, 64),
			"timestamp":       ts.Format(time.RFC3339),
		},
	})

	key := p.dailyKey(ts)
	pipe.HIncrBy(ctx, key, "requests", 1)
	if ev.Success {
		pipe.HIncrBy(ctx, key, "successful", 1)
		pipe.HIncrBy(ctx, key, "bytes", ev.FileSize)
	}
	pipe.Expire(ctx, key, dailyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// DailyCounts returns the counters for the UTC day containing t.
func (p *Publisher) DailyCounts(ctx context.Context, t time.Time) (requests, successful, bytes int64, err error) {
	vals, err := p.client.HGetAll(ctx, p.dailyKey(t.UTC())).Result()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("redis hgetall failed: %w", err)
	}
	requests, _ = strconv.ParseInt(vals["requests"], 10, 64)
	successful, _ = strconv.ParseInt(vals["successful"], 10, 64)
	bytes, _ = strconv.ParseInt(vals["bytes"], 10, 64)
	return requests, successful, bytes, nil
}

func (p *Publisher) dailyKey(t time.Time) string {
	return p.stream + ":daily:" + t.Format("2006-01-02")
}
