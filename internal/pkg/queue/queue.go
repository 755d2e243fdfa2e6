// Package queue is the optional Redis-backed durability extension: a
// push-only enqueue path that lets a second process instance pick up
// accepted optimization jobs if the in-process worker pool were ever split
// out from the API process. The in-process worker pool remains the
// primary execution path; this package only persists a record of what was
// accepted so it survives a process restart.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// JobListKey and WakeupChannel are exported so cmd/optimizer-worker can
// drain the same list and subscribe to the same channel this package
// writes to, without duplicating the literal strings.
const (
	JobListKey    = "image-optimization:jobs"
	WakeupChannel = "image-optimization:wakeups"
)

// Job is the durable record of one accepted optimization request.
type Job struct {
	OptimizationID string    `json:"optimizationId"`
	NewFilePath    string    `json:"newFilePath"`
	AcceptedAt     time.Time `json:"acceptedAt"`
}

// Client wraps a Redis connection for the durability extension. A nil
// Client is valid and every method becomes a no-op, matching the teacher's
// "Redis is optional for development" stance.
type Client struct {
	rdb *redis.Client
}

// New connects to redisURL. An empty URL disables the extension entirely
// and returns a nil-backed Client rather than an error.
func New(redisURL string) (*Client, error) {
	if redisURL == "" {
		log.Warn().Msg("queue: Redis URL not configured, durability extension disabled")
		return &Client{}, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opt.PoolSize = 20
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	log.Info().Msg("queue: connected to Redis")
	return &Client{rdb: rdb}, nil
}

// Enabled reports whether a live Redis connection backs this Client.
func (c *Client) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Enqueue persists job and wakes up any subscribed consumer. It is
// best-effort: a failure here never blocks the accept path, since the
// in-process worker pool has already been handed the task by the time
// this is called.
func (c *Client) Enqueue(ctx context.Context, job Job) {
	if !c.Enabled() {
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		log.Warn().Err(err).Msg("queue: failed to marshal job")
		return
	}

	if err := c.rdb.LPush(ctx, JobListKey, payload).Err(); err != nil {
		log.Warn().Err(err).Msg("queue: failed to push job")
		return
	}
	if err := c.rdb.Publish(ctx, WakeupChannel, job.OptimizationID).Err(); err != nil {
		log.Warn().Err(err).Msg("queue: failed to publish wakeup")
	}
}

// Close closes the underlying Redis connection, if any.
func (c *Client) Close() {
	if c.Enabled() {
		if err := c.rdb.Close(); err != nil {
			log.Error().Err(err).Msg("queue: error closing Redis connection")
		}
	}
}

// cmd/optimizer-worker is the one consumer of JobListKey/WakeupChannel.
// It deliberately only logs what it drains rather than re-running a
// transform pipeline; see its package comment for why.
