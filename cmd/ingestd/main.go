// Package main wires together the ingest service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/macmap/instaingest/internal/api"
	"github.com/macmap/instaingest/internal/clock/system"
	"github.com/macmap/instaingest/internal/config"
	"github.com/macmap/instaingest/internal/dispatcher"
	"github.com/macmap/instaingest/internal/fetch"
	"github.com/macmap/instaingest/internal/id/uuid"
	"github.com/macmap/instaingest/internal/ingest"
	"github.com/macmap/instaingest/internal/logging"
	"github.com/macmap/instaingest/internal/media"
	memorypublisher "github.com/macmap/instaingest/internal/publisher/memory"
	pubsubpublisher "github.com/macmap/instaingest/internal/publisher/pubsub"
	queuememory "github.com/macmap/instaingest/internal/queue/memory"
	"github.com/macmap/instaingest/internal/storage/gcs"
	memorystorage "github.com/macmap/instaingest/internal/storage/memory"
	"github.com/macmap/instaingest/internal/storage/postgres"
	"github.com/macmap/instaingest/internal/storage/s3"
	"github.com/macmap/instaingest/internal/tasks"
	"github.com/macmap/instaingest/internal/telemetry"
	"github.com/macmap/instaingest/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Missing .env is fine; config falls back to defaults and real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobStore, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	profileStore, statusStore, closeStores, err := buildStores(ctx, cfg)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStores()

	publisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}

	fetcher, err := fetch.New(fetch.Config{
		ProxyURL:      cfg.Proxy.URL(),
		AppID:         cfg.Source.AppID,
		Timeout:       cfg.FetchTimeout(),
		StreamTimeout: cfg.StreamTimeout(),
		MaxRetries:    cfg.HTTP.MaxRetries,
		BackoffBase:   time.Duration(cfg.HTTP.BackoffBaseMs) * time.Millisecond,
		RatePerSecond: cfg.HTTP.RateLimitPerSecond,
		RateBurst:     cfg.HTTP.RateLimitBurst,
	}, logger.Named("fetch"))
	if err != nil {
		logger.Fatal("fetch client init failed", zap.Error(err))
	}

	relocator := media.New(fetcher, blobStore, cfg.Media.StagingDir, logger.Named("media"))
	taskStore := tasks.NewStore()
	queue := queuememory.NewQueue(cfg.Ingest.QueueDepth)
	clock := system.New()
	idGen := uuid.New()
	metrics := telemetry.New()
	retry := ingest.NewFixedRetryPolicy(cfg.Ingest.TaskMaxAttempts, cfg.TaskBackoff())

	workerCfg := worker.Config{
		BaseURL:     cfg.Source.BaseURL,
		MediaPrefix: cfg.Media.KeyPrefix,
		Topic:       cfg.PubSub.TopicName,
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Ingest.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			taskStore,
			statusStore,
			profileStore,
			fetcher,
			relocator,
			publisher,
			clock,
			retry,
			metrics,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(
		profileStore,
		statusStore,
		taskStore,
		dispatch,
		idGen,
		clock,
		metrics,
		cfg,
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Ingest.Concurrency))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}

func buildBlobStore(ctx context.Context, cfg config.Config) (ingest.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	case "s3":
		return s3.New(s3.Config{
			Bucket: cfg.Storage.S3Bucket,
			Region: cfg.Storage.S3Region,
		})
	case "memory":
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func buildStores(ctx context.Context, cfg config.Config) (ingest.ProfileStore, ingest.StatusStore, func(), error) {
	if cfg.DB.DSN == "" {
		store := memorystorage.NewStore()
		return store, store, func() {}, nil
	}
	store, err := postgres.NewStore(ctx, postgres.StoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	return store, store, store.Close, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (ingest.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		logger.Info("pubsub not configured, completion events stay in memory")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return pubsubpublisher.New(client.Topic(cfg.PubSub.TopicName)), nil
}
