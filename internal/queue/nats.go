package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const drainTimeout = 30 * time.Second

// NATSBus carries jobs over core NATS subjects named after the topics.
// Core NATS does not persist messages, so a job published while no worker
// is subscribed is lost.
type NATSBus struct {
	conn   *nats.Conn
	group  string
	logger *zap.Logger

	mu   sync.Mutex
	subs []*nats.Subscription

	closed chan struct{}
}

// DialNATS connects to url. When group is non-empty, subscribers join that
// queue group and each job goes to one replica only.
func DialNATS(url, group string, logger *zap.Logger) (*NATSBus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	closed := make(chan struct{})
	conn, err := nats.Connect(url,
		nats.Name("cloudnest"),
		nats.DrainTimeout(drainTimeout),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSBus{conn: conn, group: group, logger: logger, closed: closed}, nil
}

// Publish encodes job as JSON and sends it on topic.
func (b *NATSBus) Publish(ctx context.Context, topic string, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := b.conn.Publish(topic, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe attaches one subscription per router topic and returns once they are live.
// Handlers run on the subscription's delivery goroutine.
func (b *NATSBus) Subscribe(ctx context.Context, router *Router) error {
	for _, topic := range router.Topics() {
		handler, _ := router.Lookup(topic)
		cb := b.deliver(ctx, topic, handler)

		var (
			sub *nats.Subscription
			err error
		)
		if b.group != "" {
			sub, err = b.conn.QueueSubscribe(topic, b.group, cb)
		} else {
			sub, err = b.conn.Subscribe(topic, cb)
		}
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}

		b.mu.Lock()
		b.subs = append(b.subs, sub)
		b.mu.Unlock()
		b.logger.Info("subscribed", zap.String("topic", topic), zap.String("group", b.group))
	}
	return b.conn.FlushWithContext(ctx)
}

func (b *NATSBus) deliver(ctx context.Context, topic string, handler Handler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			b.logger.Warn("dropping undecodable job", zap.String("topic", topic), zap.Error(err))
			return
		}
		handler(ctx, job)
	}
}

// Ping reports whether the connection is up.
func (b *NATSBus) Ping(context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats status %s", b.conn.Status())
	}
	return nil
}

// Close drains subscriptions and blocks until in-flight callbacks return
// and the connection is closed.
func (b *NATSBus) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		return fmt.Errorf("drain nats: %w", err)
	}
	select {
	case <-b.closed:
		return nil
	case <-time.After(drainTimeout + time.Second):
		return fmt.Errorf("nats drain did not finish within %s", drainTimeout)
	}
}
