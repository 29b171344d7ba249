package worker

import (
	"context"

	"github.com/abduss/cloudnest/internal/config"
	"github.com/abduss/cloudnest/internal/queue"
	"go.uber.org/zap"
)

// NewRouter registers the processor on every topic behind the pool.
func NewRouter(proc *Processor, pool *Pool, logger *zap.Logger) (*queue.Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := queue.NewRouter()
	for _, topic := range queue.Topics() {
		handler := func(ctx context.Context, job queue.Job) {
			logger.Debug("job delivered", zap.String("topic", topic), zap.String("file_id", job.FileID))
			proc.Handle(ctx, job)
		}
		if err := router.Handle(topic, pool.Wrap(topic, handler)); err != nil {
			return nil, err
		}
	}
	return router, nil
}

// Build wires the default extractors, a callback client, the pool and the
// router from configuration.
func Build(cfg config.Config, store blobStore, logger *zap.Logger) (*queue.Router, *Pool, error) {
	reporter := NewCallbackClient(cfg.Worker.FileServiceURL, cfg.Internal.Token, nil)
	proc := NewProcessor(store, DefaultExtractors(cfg.Worker), reporter, cfg.Worker.JobTimeout, logger)
	pool := NewPool(cfg.Worker.Concurrency, logger)
	router, err := NewRouter(proc, pool, logger)
	if err != nil {
		return nil, nil, err
	}
	return router, pool, nil
}
