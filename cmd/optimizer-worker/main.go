// Command optimizer-worker is the standalone consumer half of the Redis
// durability extension (internal/pkg/queue). It is not required for normal
// operation — the API process's in-process worker pool already handles
// every accepted job. It pops internal/pkg/queue's job list and logs each
// record; it does not run any transform, so it takes no load off the API's
// own pool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/imageopt/optimizer/internal/config"
	"github.com/imageopt/optimizer/internal/pkg/queue"
)

const pollInterval = 5 * time.Second

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	if !cfg.QueueEnabled || cfg.RedisURL == "" {
		log.Info().Msg("optimizer-worker: queue disabled, nothing to consume, exiting")
		return
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("optimizer-worker: invalid REDIS_URL")
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("optimizer-worker: shutdown signal received")
		cancel()
	}()

	wake := make(chan struct{}, 1)
	go subscribeWakeups(ctx, rdb, wake)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	log.Info().Msg("optimizer-worker: started, draining image-optimization:jobs")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("optimizer-worker: stopped")
			return
		case <-wake:
		case <-ticker.C:
		}

		drainOnce(ctx, rdb)
	}
}

// drainOnce pops and logs whatever is waiting in the job list. There is no
// second transform path wired up here yet: the in-process worker pool is
// the only thing that actually runs optimizer transforms today, so this
// loop exists to prove the durability extension's write side is
// consumable, not to run a parallel pipeline.
func drainOnce(ctx context.Context, rdb *redis.Client) {
	for {
		result, err := rdb.RPop(ctx, queue.JobListKey).Result()
		if err == redis.Nil {
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("optimizer-worker: failed to pop job")
			return
		}
		log.Info().Str("job", result).Msg("optimizer-worker: observed durable job record")
	}
}

func subscribeWakeups(ctx context.Context, rdb *redis.Client, wake chan<- struct{}) {
	sub := rdb.Subscribe(ctx, queue.WakeupChannel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Channel():
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}
}
