package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/abduss/cloudnest/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent job handling across every topic of a process.
type Pool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool allows size handlers to run at once.
func NewPool(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), logger: logger}
}

// Wrap returns a handler that waits for a free slot and then runs h on its
// own goroutine with panic recovery. Waiting blocks the delivering goroutine,
// so a full pool pushes back on the transport. Jobs that arrive after ctx is
// done are dropped.
func (p *Pool) Wrap(topic string, h queue.Handler) queue.Handler {
	return func(ctx context.Context, job queue.Job) {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.logger.Warn("dropping job, pool is shutting down",
				zap.String("topic", topic),
				zap.String("file_id", job.FileID),
			)
			return
		}
		p.wg.Add(1)
		go func() {
			defer func() {
				p.sem.Release(1)
				p.wg.Done()
			}()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("job handler panicked",
						zap.String("topic", topic),
						zap.String("file_id", job.FileID),
						zap.String("panic", fmt.Sprint(r)),
						zap.ByteString("stack", debug.Stack()),
					)
				}
			}()
			h(ctx, job)
		}()
	}
}

// Wait blocks until in-flight handlers return or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
