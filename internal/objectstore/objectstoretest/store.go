// Package objectstoretest provides an in-memory objectstore.Store for tests.
package objectstoretest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/abduss/cloudnest/internal/objectstore"
)

// Store keeps objects in a map. Set the Fail* fields to inject errors.
type Store struct {
	mu      sync.Mutex
	objects map[string]object

	// FailRemove makes Remove fail for the listed keys.
	FailRemove map[string]error
	// FailPut makes every Put fail.
	FailPut error

	Removed   []string
	Presigned []string
}

type object struct {
	data        []byte
	contentType string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{objects: make(map[string]object), FailRemove: make(map[string]error)}
}

// Seed stores data under key without going through Put.
func (s *Store) Seed(key string, data []byte, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: append([]byte(nil), data...), contentType: contentType}
}

// Has reports whether key exists.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// Keys returns every stored key, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) PresignPut(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	s.Presigned = append(s.Presigned, key)
	s.mu.Unlock()
	return fmt.Sprintf("http://objects.test/put/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (s *Store) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("http://objects.test/get/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", objectstore.ErrObjectNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *Store) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if s.FailPut != nil {
		return s.FailPut
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: data, contentType: contentType}
	return nil
}

func (s *Store) Stat(_ context.Context, key string) (objectstore.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return objectstore.ObjectInfo{}, fmt.Errorf("%w: %s", objectstore.ErrObjectNotFound, key)
	}
	return objectstore.ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.FailRemove[key]; ok && err != nil {
		return err
	}
	s.Removed = append(s.Removed, key)
	delete(s.objects, key)
	return nil
}

func (s *Store) URL(key string) string {
	return "http://objects.test/cloudnest/" + key
}

// ErrInjected is a convenience error for Fail* fields.
var ErrInjected = errors.New("injected failure")
