package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"docproc/internal/util"
	"docproc/pkg/extract"
	"docproc/pkg/queue"
	"docproc/pkg/storage"
	"docproc/pkg/store"
	"docproc/services/worker/internal/app"
	"docproc/services/worker/internal/config"
	"docproc/services/worker/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	documents, err := store.NewGormStore(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to init document store: %v", err)
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.Fatalf("failed to init blob storage: %v", err)
	}

	jobs, err := newJobQueue(cfg)
	if err != nil {
		log.Fatalf("failed to init job queue: %v", err)
	}
	defer jobs.Close()

	runner := app.NewRunner(documents, blobs, extract.NewSimulatedExtractor())

	jobs.Subscribe(queue.Events{
		OnCompleted: func(job queue.Job) {
			logger.Info("job completed", "job_id", job.ID, "document_id", job.DocumentID, "attempt", job.Attempt)
		},
		OnFailed: func(job queue.Job, err error, dead bool) {
			if dead {
				logger.Error("job dead-lettered", "job_id", job.ID, "document_id", job.DocumentID, "attempts", job.Attempt, "err", err)
				return
			}
			logger.Warn("job attempt failed, will retry", "job_id", job.ID, "document_id", job.DocumentID, "attempt", job.Attempt, "err", err)
		},
		OnStalled: func(job queue.Job) {
			logger.Warn("reclaimed stalled job", "job_id", job.ID, "document_id", job.DocumentID)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	concurrency := cfg.QueueConcurrency
	if concurrency <= 0 {
		concurrency = queue.DefaultConcurrency
	}
	jobs.Start(ctx, concurrency, runner.Process)

	httpServer := server.New(server.Config{Queue: jobs})
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("worker server listening", "addr", addr, "concurrency", concurrency)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("worker shut down with error", "err", err)
		return
	}
	logger.Info("worker shut down")
}

func newBlobStore(cfg config.FileConfig) (storage.BlobStore, error) {
	switch cfg.StorageDriver {
	case "minio":
		return storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		return storage.NewDiskStore(cfg.UploadDir)
	}
}

func newJobQueue(cfg config.FileConfig) (queue.JobQueue, error) {
	backoff := time.Duration(cfg.QueueBackoffMillis) * time.Millisecond
	switch cfg.QueueDriver {
	case "amqp":
		return queue.NewAMQPJobQueue(queue.AMQPQueueConfig{
			URL:         cfg.AMQPURL,
			Queue:       cfg.QueueName,
			MaxAttempts: cfg.QueueMaxAttempts,
			BackoffBase: backoff,
		})
	default:
		return queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			Stream:      cfg.QueueName,
			Group:       cfg.QueueGroup,
			Consumer:    util.NewID(),
			MaxAttempts: cfg.QueueMaxAttempts,
			BackoffBase: backoff,
		})
	}
}
