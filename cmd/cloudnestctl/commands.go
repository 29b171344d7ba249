package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abduss/cloudnest/internal/config"
	"github.com/abduss/cloudnest/internal/file"
	"github.com/abduss/cloudnest/internal/logger"
	"github.com/abduss/cloudnest/internal/objectstore"
	"github.com/abduss/cloudnest/internal/queue"
	"github.com/abduss/cloudnest/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// env is what every subcommand needs once configuration is loaded.
type env struct {
	cfg config.Config
	log *zap.Logger
}

func newRootCommand() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "cloudnestctl",
		Short:         "Operator tooling for CloudNest",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			_ = godotenv.Load()
			l, err := logger.Init()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(l)
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			e.cfg, e.log = cfg, l
			return nil
		},
	}

	root.AddCommand(newMigrateCommand(e), newReapCommand(e), newReprocessCommand(e))
	return root
}

func newMigrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := storage.NewPostgresPool(cmd.Context(), e.cfg.Postgres)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := storage.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newReapCommand(e *env) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Delete files that were never completed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				olderThan = e.cfg.Uploads.OrphanTTL
			}
			svc, cleanup, err := e.fileService(cmd.Context(), noopPublisher{})
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := svc.ReapOrphans(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reaped %d orphaned uploads older than %s\n", n, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age threshold (defaults to ORPHAN_TTL)")
	return cmd
}

func newReprocessCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <file-id>...",
		Short: "Publish a fresh media job for each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, 0, len(args))
			for _, arg := range args {
				id, err := uuid.Parse(arg)
				if err != nil {
					return fmt.Errorf("invalid file id %q: %w", arg, err)
				}
				ids = append(ids, id)
			}
			if e.cfg.Queue.Driver == config.QueueMemory {
				return errors.New("reprocess needs a shared queue; set QUEUE_DRIVER=nats")
			}

			bus, err := queue.Open(e.cfg.Queue, e.log)
			if err != nil {
				return err
			}
			defer bus.Close()

			svc, cleanup, err := e.fileService(cmd.Context(), bus)
			if err != nil {
				return err
			}
			defer cleanup()

			var failed int
			for _, id := range ids {
				f, err := svc.Reprocess(cmd.Context(), uuid.Nil, id)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", f.ID, f.Status)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files not reprocessed", failed, len(ids))
			}
			return nil
		},
	}
}

func (e *env) fileService(ctx context.Context, publisher queue.Publisher) (*file.Service, func(), error) {
	pool, err := storage.NewPostgresPool(ctx, e.cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	store, err := objectstore.New(ctx, e.cfg.ObjectStore)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return file.NewService(file.NewRepository(pool), store, publisher, e.cfg.Uploads), closer(pool), nil
}

func closer(pool *pgxpool.Pool) func() {
	return func() { pool.Close() }
}

// noopPublisher backs commands that never publish.
type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, queue.Job) error {
	return errors.New("publishing is not available in this command")
}
