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
	"docproc/pkg/queue"
	"docproc/pkg/storage"
	"docproc/pkg/store"
	"docproc/services/api/internal/app"
	"docproc/services/api/internal/config"
	"docproc/services/api/internal/server"
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

	appCore, err := app.New(app.Config{Store: documents, Blobs: blobs, Queue: jobs})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api server listening", "addr", addr)
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
		logger.Error("api shut down with error", "err", err)
		return
	}
	logger.Info("api shut down")
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
	switch cfg.QueueDriver {
	case "amqp":
		return queue.NewAMQPJobQueue(queue.AMQPQueueConfig{
			URL:   cfg.AMQPURL,
			Queue: cfg.QueueName,
		})
	default:
		return queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.QueueName,
			Group:    cfg.QueueGroup,
			Consumer: util.NewID(),
		})
	}
}
