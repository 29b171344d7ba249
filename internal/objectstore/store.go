// Package objectstore is the capability interface CloudNest uses against its
// blob store: presigned writes for clients plus streaming reads, writes,
// stats and deletes by key for the services themselves.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abduss/cloudnest/internal/config"
)

const defaultObjectStoreTimeout = 5 * time.Second

// ErrObjectNotFound signals that no object exists under the requested key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored blob.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Store is implemented by every blob backend.
type Store interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Remove(ctx context.Context, key string) error
	URL(key string) string
}

// Pinger is implemented by backends that can report reachability for readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New builds the backend selected by cfg.Driver and makes sure the bucket exists.
func New(ctx context.Context, cfg config.ObjectStoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverMinIO, "":
		store, err := NewMinIOStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverS3:
		store, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported object store driver %q", cfg.Driver)
	}
}

// publicURL renders <base>/<bucket>/<key>.
func publicURL(base, bucket, key string) string {
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + strings.TrimLeft(key, "/")
}
