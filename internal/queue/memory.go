package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a MemoryBus after Close.
var ErrClosed = errors.New("queue closed")

// MemoryBus is an in-process broadcast bus. Like core NATS it keeps nothing:
// a job published with no subscriber for its topic is dropped.
type MemoryBus struct {
	mu      sync.RWMutex
	routers []subscription
	closed  bool
	wg      sync.WaitGroup
}

type subscription struct {
	ctx    context.Context
	router *Router
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish delivers job to every subscribed router with a handler for topic.
// Each delivery runs on its own goroutine.
func (b *MemoryBus) Publish(ctx context.Context, topic string, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, sub := range b.routers {
		handler, ok := sub.router.Lookup(topic)
		if !ok {
			continue
		}
		b.wg.Add(1)
		go func(ctx context.Context, h Handler) {
			defer b.wg.Done()
			h(ctx, job)
		}(sub.ctx, handler)
	}
	return nil
}

// Subscribe registers router for deliveries until ctx ends or the bus closes.
func (b *MemoryBus) Subscribe(ctx context.Context, router *Router) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.routers = append(b.routers, subscription{ctx: ctx, router: router})

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.routers {
			if sub.router == router {
				b.routers = append(b.routers[:i], b.routers[i+1:]...)
				break
			}
		}
	}()
	return nil
}

// Wait blocks until every delivery started so far has returned.
func (b *MemoryBus) Wait() {
	b.wg.Wait()
}

// Ping always succeeds while the bus is open.
func (b *MemoryBus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close stops accepting jobs and waits for in-flight deliveries.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.routers = nil
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}
