package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/abduss/cloudnest/internal/config"
	"github.com/abduss/cloudnest/internal/logger"
	"github.com/abduss/cloudnest/internal/metrics"
	"github.com/abduss/cloudnest/internal/objectstore"
	"github.com/abduss/cloudnest/internal/queue"
	"github.com/abduss/cloudnest/internal/server"
	"github.com/abduss/cloudnest/internal/worker"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 2 * time.Minute

func main() {
	_ = godotenv.Load()

	zl, err := logger.Init()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	cfg, err := config.Load()
	if err != nil {
		zl.Fatal("load config", zap.Error(err))
	}
	if cfg.Queue.Driver == config.QueueMemory {
		zl.Fatal("the memory queue only works inside the api process; set QUEUE_DRIVER=nats")
	}
	metrics.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := objectstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		zl.Fatal("connect object store", zap.Error(err))
	}

	bus, err := queue.Open(cfg.Queue, zl)
	if err != nil {
		zl.Fatal("connect queue", zap.Error(err))
	}

	router, pool, err := worker.Build(cfg, store, zl)
	if err != nil {
		zl.Fatal("build worker", zap.Error(err))
	}

	// Handlers keep this context through shutdown so draining jobs are not cut short.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	if err := bus.Subscribe(runCtx, router); err != nil {
		zl.Fatal("subscribe", zap.Error(err))
	}

	var checks []server.Check
	if p, ok := bus.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, server.Check{Component: "queue", Ping: p.Ping})
	}
	if p, ok := store.(objectstore.Pinger); ok {
		checks = append(checks, server.Check{Component: "object_store", Ping: p.Ping})
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.HTTPPort),
		Handler:           server.NewWorkerRouter(cfg, checks),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("CloudNest worker ready",
			zap.String("addr", httpServer.Addr),
			zap.Int("concurrency", cfg.Worker.Concurrency),
			zap.Strings("topics", router.Topics()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("draining subscriptions")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := bus.Close(); err != nil {
			zl.Warn("close queue", zap.Error(err))
		}
		if err := pool.Wait(shutdownCtx); err != nil {
			zl.Warn("in-flight jobs abandoned", zap.Error(err))
		}
		cancelRun()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zl.Error("worker stopped", zap.Error(err))
	}
}
