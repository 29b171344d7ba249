package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler processes a single job.
type Handler func(ctx context.Context, job Job)

// Router maps topics to handlers. It is built once at startup.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Handle registers h for topic. A topic may be registered only once.
func (r *Router) Handle(topic string, h Handler) error {
	if topic == "" {
		return fmt.Errorf("empty topic")
	}
	if h == nil {
		return fmt.Errorf("nil handler for %q", topic)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[topic]; exists {
		return fmt.Errorf("topic %q already has a handler", topic)
	}
	r.handlers[topic] = h
	return nil
}

// Lookup returns the handler for topic.
func (r *Router) Lookup(topic string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[topic]
	return h, ok
}

// Topics returns the registered topics sorted by name.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}
