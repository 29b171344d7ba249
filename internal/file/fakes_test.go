package file

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abduss/cloudnest/internal/queue"
	"github.com/google/uuid"
)

// fakeRepo implements metadataStore in memory with the same status rules as Repository.
type fakeRepo struct {
	mu       sync.Mutex
	files    map[uuid.UUID]File
	replaced int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{files: make(map[uuid.UUID]File)}
}

func (r *fakeRepo) Create(_ context.Context, f File) (File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	f.CreatedAt, f.UpdatedAt = now, now
	f.Variants = []Variant{}
	r.files[f.ID] = f
	return f, nil
}

func (r *fakeRepo) Get(_ context.Context, id uuid.UUID) (File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return File{}, ErrFileNotFound
	}
	return cloneFile(f), nil
}

func (r *fakeRepo) GetByStorageKey(_ context.Context, key string) (File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.StorageKey == key {
			return cloneFile(f), nil
		}
	}
	return File{}, ErrFileNotFound
}

func (r *fakeRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []File{}
	for _, f := range r.files {
		if f.OwnerID == ownerID {
			out = append(out, cloneFile(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeRepo) ListUploadedBefore(_ context.Context, cutoff time.Time, limit int) ([]File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []File{}
	for _, f := range r.files {
		if f.Status == StatusUploaded && f.CreatedAt.Before(cutoff) {
			out = append(out, cloneFile(f))
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) TransitionStatus(_ context.Context, id uuid.UUID, from []Status, to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return ErrFileNotFound
	}
	if !containsStatus(from, f.Status) {
		return ErrInvalidState
	}
	f.Status = to
	r.files[id] = f
	return nil
}

func (r *fakeRepo) UpdateSize(_ context.Context, id uuid.UUID, size int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return ErrFileNotFound
	}
	f.SizeBytes = size
	r.files[id] = f
	return nil
}

func (r *fakeRepo) ReplaceVariants(_ context.Context, id uuid.UUID, from []Status, to Status, variants []Variant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return ErrFileNotFound
	}
	if len(from) > 0 && !containsStatus(from, f.Status) {
		return ErrInvalidState
	}
	f.Variants = append([]Variant{}, variants...)
	f.Status = to
	r.files[id] = f
	r.replaced++
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id uuid.UUID, onlyIf Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok || (onlyIf != "" && f.Status != onlyIf) {
		return ErrFileNotFound
	}
	delete(r.files, id)
	return nil
}

func (r *fakeRepo) backdate(id uuid.UUID, age time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.files[id]
	f.CreatedAt = f.CreatedAt.Add(-age)
	r.files[id] = f
}

func cloneFile(f File) File {
	f.Variants = append([]Variant{}, f.Variants...)
	return f
}

type publishedJob struct {
	topic string
	job   queue.Job
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []publishedJob
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, job queue.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, publishedJob{topic: topic, job: job})
	return nil
}
