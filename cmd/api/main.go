package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/abduss/cloudnest/internal/auth"
	"github.com/abduss/cloudnest/internal/config"
	"github.com/abduss/cloudnest/internal/file"
	"github.com/abduss/cloudnest/internal/link"
	"github.com/abduss/cloudnest/internal/logger"
	"github.com/abduss/cloudnest/internal/metrics"
	"github.com/abduss/cloudnest/internal/objectstore"
	"github.com/abduss/cloudnest/internal/queue"
	"github.com/abduss/cloudnest/internal/server"
	"github.com/abduss/cloudnest/internal/storage"
	"github.com/abduss/cloudnest/internal/worker"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

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
	metrics.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		zl.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	if err := storage.Migrate(ctx, dbPool); err != nil {
		zl.Fatal("migrate", zap.Error(err))
	}

	store, err := objectstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		zl.Fatal("connect object store", zap.Error(err))
	}

	bus, err := queue.Open(cfg.Queue, zl)
	if err != nil {
		zl.Fatal("connect queue", zap.Error(err))
	}

	authService := auth.NewService(auth.NewRepository(dbPool), cfg.Auth)
	fileService := file.NewService(file.NewRepository(dbPool), store, bus, cfg.Uploads)
	linkService := link.NewService(link.NewRepository(dbPool), fileService, store, cfg.Links, cfg.Auth.BcryptCost)

	checks := []server.Check{{Component: "postgres", Ping: dbPool.Ping}}
	if p, ok := store.(objectstore.Pinger); ok {
		checks = append(checks, server.Check{Component: "object_store", Ping: p.Ping})
	}
	if p, ok := bus.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, server.Check{Component: "queue", Ping: p.Ping})
	}

	// The memory bus only reaches subscribers in this process, so the api
	// hosts the workers itself.
	var pool *worker.Pool
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	if cfg.Queue.Driver == config.QueueMemory {
		router, p, err := worker.Build(cfg, store, zl.Named("worker"))
		if err != nil {
			zl.Fatal("build worker", zap.Error(err))
		}
		if err := bus.Subscribe(runCtx, router); err != nil {
			zl.Fatal("subscribe", zap.Error(err))
		}
		pool = p
		zl.Info("running embedded workers", zap.Int("concurrency", cfg.Worker.Concurrency))
	}

	if cfg.Uploads.ReapInterval > 0 {
		go fileService.RunReaper(runCtx, cfg.Uploads.ReapInterval, cfg.Uploads.OrphanTTL)
	}

	router := server.NewRouter(server.Dependencies{
		Config:      cfg,
		Checks:      checks,
		AuthService: authService,
		FileService: fileService,
		LinkService: linkService,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("CloudNest API listening", zap.String("addr", cfg.Server.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Jobs in flight still need the callback endpoint, so the queue drains first.
		if err := bus.Close(); err != nil {
			zl.Warn("close queue", zap.Error(err))
		}
		if pool != nil {
			if err := pool.Wait(shutdownCtx); err != nil {
				zl.Warn("in-flight jobs abandoned", zap.Error(err))
			}
		}
		cancelRun()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zl.Error("api stopped", zap.Error(err))
	}
}
