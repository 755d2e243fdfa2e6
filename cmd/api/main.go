package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/imageopt/optimizer/internal/config"
	"github.com/imageopt/optimizer/internal/domain/optimization"
	"github.com/imageopt/optimizer/internal/middleware"
	"github.com/imageopt/optimizer/internal/pkg/blobstore"
	"github.com/imageopt/optimizer/internal/pkg/callback"
	"github.com/imageopt/optimizer/internal/pkg/logger"
	"github.com/imageopt/optimizer/internal/pkg/queue"
	"github.com/imageopt/optimizer/internal/pkg/registry"
	"github.com/imageopt/optimizer/internal/pkg/sse"
	"github.com/imageopt/optimizer/internal/pkg/ttlstore"
	"github.com/imageopt/optimizer/internal/pkg/workerpool"
)

func main() {
	cfg := config.Load()

	if err := setupLogger(cfg); err != nil {
		panic(err)
	}

	tempDir := os.Getenv("TEMP_DIR")
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create temp directory")
	}

	store := ttlstore.New()
	reg := registry.New(store, cfg.DefaultTTL())
	log.Info().Str("default_ttl_seconds", registry.FormatTTLSeconds(cfg.DefaultTTL())).Msg("registry initialized")

	pool := workerpool.New(workerpool.Config{
		MinThreads:    1,
		MaxThreads:    cfg.QueueConcurrency,
		IdleTimeoutMs: 5000,
		QueueCeiling:  10000,
	})

	broker := sse.New()
	notifier := callback.New()

	sink, err := buildBlobSink(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize blob storage")
	}

	var queueClient *queue.Client
	if cfg.QueueEnabled {
		queueClient, err = queue.New(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Redis durability queue")
		}
		defer queueClient.Close()
	} else {
		queueClient, _ = queue.New("")
	}

	service := optimization.NewService(reg, pool, broker, notifier, sink, queueClient)
	cleanup := optimization.NewCleanupScheduler(store, reg, cfg.CleanupInterval())
	cleanup.Start()

	handler := optimization.NewHandler(service, broker, tempDir)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5))

	r.Get("/health", healthCheck)
	r.Mount("/image-optimization", handler.Routes())
	r.Mount("/image-optimization-sse", handler.SSERoutes())

	rootHandler := middleware.Logger(middleware.Recover(r))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting image optimization server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	cleanup.Stop()
	pool.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

// buildBlobSink prefers an S3-compatible sink when storage credentials are
// configured and falls back to an in-memory sink for local/offline use.
func buildBlobSink(cfg *config.Config) (blobstore.BlobSink, error) {
	if cfg.S3Endpoint == "" && cfg.S3AccessKey == "" {
		log.Warn().Msg("no object storage configured, using in-memory blob sink")
		return blobstore.NewMemorySink("/image-optimization/download"), nil
	}

	return blobstore.NewS3Sink(context.Background(), blobstore.S3Config{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
		CustomDomain: cfg.S3CustomDomain,
	})
}

func setupLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
	})
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
