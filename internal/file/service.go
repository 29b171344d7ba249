package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abduss/cloudnest/internal/callback"
	"github.com/abduss/cloudnest/internal/config"
	"github.com/abduss/cloudnest/internal/logger"
	"github.com/abduss/cloudnest/internal/metrics"
	"github.com/abduss/cloudnest/internal/objectstore"
	"github.com/abduss/cloudnest/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type metadataStore interface {
	Create(ctx context.Context, f File) (File, error)
	Get(ctx context.Context, id uuid.UUID) (File, error)
	GetByStorageKey(ctx context.Context, key string) (File, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]File, error)
	ListUploadedBefore(ctx context.Context, cutoff time.Time, limit int) ([]File, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) error
	UpdateSize(ctx context.Context, id uuid.UUID, size int64) error
	ReplaceVariants(ctx context.Context, id uuid.UUID, from []Status, to Status, variants []Variant) error
	Delete(ctx context.Context, id uuid.UUID, onlyIf Status) error
}

// Service coordinates uploads, job dispatch and reconciliation.
type Service struct {
	repo      metadataStore
	store     objectstore.Store
	publisher queue.Publisher
	urlTTL    time.Duration
	maxBytes  int64
	nowFunc   func() time.Time
}

// NewService constructs a file service.
func NewService(repo metadataStore, store objectstore.Store, publisher queue.Publisher, cfg config.UploadConfig) *Service {
	return &Service{
		repo:      repo,
		store:     store,
		publisher: publisher,
		urlTTL:    cfg.URLTTL,
		maxBytes:  cfg.MaxBytes,
		nowFunc:   time.Now,
	}
}

// RequestUpload validates the request, records an UPLOADED file and returns a presigned PUT.
func (s *Service) RequestUpload(ctx context.Context, ownerID uuid.UUID, filename, contentType string, size int64) (UploadTicket, error) {
	mimeType := canonicalMIME(contentType)
	if !IsAllowed(mimeType) {
		return UploadTicket{}, ErrUnsupportedMediaType
	}
	if size <= 0 || (s.maxBytes > 0 && size > s.maxBytes) {
		return UploadTicket{}, ErrInvalidUpload
	}

	name := normalizeFilename(filename)
	key := storageKeyFor(ownerID, name)

	uploadURL, err := s.store.PresignPut(ctx, key, s.urlTTL)
	if err != nil {
		return UploadTicket{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	stored, err := s.repo.Create(ctx, File{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Filename:   name,
		StorageKey: key,
		URL:        s.store.URL(key),
		SizeBytes:  size,
		MimeType:   mimeType,
		Status:     StatusUploaded,
	})
	if err != nil {
		return UploadTicket{}, err
	}

	return UploadTicket{
		FileID:     stored.ID,
		StorageKey: stored.StorageKey,
		UploadURL:  uploadURL,
		ExpiresAt:  s.nowFunc().Add(s.urlTTL).UTC(),
	}, nil
}

func storageKeyFor(ownerID uuid.UUID, normalizedName string) string {
	return ownerID.String() + "/" + uuid.NewString() + "_" + normalizedName
}

// CompleteUpload confirms a direct upload. Processable types move to
// PROCESSING and get exactly one job; other types complete immediately with
// a single original variant.
func (s *Service) CompleteUpload(ctx context.Context, ownerID uuid.UUID, storageKey string) (File, error) {
	f, err := s.repo.GetByStorageKey(ctx, strings.TrimSpace(storageKey))
	if err != nil {
		return File{}, err
	}
	if f.OwnerID != ownerID {
		return File{}, ErrForbidden
	}
	if f.Status != StatusUploaded {
		return File{}, ErrInvalidState
	}

	// The declared size is only a hint; the stored blob is authoritative.
	info, err := s.store.Stat(ctx, f.StorageKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return File{}, ErrFileNotFound
		}
		return File{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if s.maxBytes > 0 && info.Size > s.maxBytes {
		return File{}, ErrInvalidUpload
	}
	if info.Size != f.SizeBytes {
		if err := s.repo.UpdateSize(ctx, f.ID, info.Size); err != nil {
			return File{}, err
		}
		f.SizeBytes = info.Size
	}

	category := Classify(f.MimeType)
	jobType, processable := category.JobType()
	if !processable {
		original := Variant{
			ID:         uuid.New(),
			FileID:     f.ID,
			VariantKey: OriginalVariantKey,
			StorageKey: f.StorageKey,
			URL:        f.URL,
			Transform:  map[string]any{},
			SizeBytes:  f.SizeBytes,
		}
		if err := s.repo.ReplaceVariants(ctx, f.ID, []Status{StatusUploaded}, StatusCompleted, []Variant{original}); err != nil {
			return File{}, err
		}
		return s.repo.Get(ctx, f.ID)
	}

	if err := s.repo.TransitionStatus(ctx, f.ID, []Status{StatusUploaded}, StatusProcessing); err != nil {
		return File{}, err
	}
	f.Status = StatusProcessing

	if err := s.dispatch(ctx, f, jobType); err != nil {
		logger.FromContext(ctx).Error("job not delivered; file stays PROCESSING",
			zap.String("file_id", f.ID.String()),
			zap.String("job_type", string(jobType)),
			zap.Error(err),
		)
	}
	return f, nil
}

func (s *Service) dispatch(ctx context.Context, f File, jobType queue.JobType) error {
	topic, err := queue.TopicFor(jobType)
	if err != nil {
		return err
	}
	job := queue.Job{
		FileID:     f.ID.String(),
		StorageKey: f.StorageKey,
		MimeType:   f.MimeType,
		JobType:    jobType,
	}
	if err := s.publisher.Publish(ctx, topic, job); err != nil {
		metrics.JobsPublished.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	metrics.JobsPublished.WithLabelValues(topic, "ok").Inc()
	logger.FromContext(ctx).Info("job published",
		zap.String("file_id", job.FileID),
		zap.String("job_type", string(jobType)),
		zap.String("topic", topic),
	)
	return nil
}

// Reconcile applies a worker outcome. The prior variant set is replaced and
// the status updated atomically. An unknown file id is a silent no-op, and so
// is a file still in UPLOADED since no job was ever dispatched for it.
func (s *Service) Reconcile(ctx context.Context, req callback.UpdateRequest) error {
	if req.Version != 0 && req.Version != callback.Version {
		metrics.Reconciliations.WithLabelValues("rejected").Inc()
		return ErrUnsupportedVersion
	}

	var status Status
	switch req.Status {
	case callback.StatusCompleted:
		status = StatusCompleted
	case callback.StatusFailed:
		status = StatusFailed
	default:
		metrics.Reconciliations.WithLabelValues("rejected").Inc()
		return ErrInvalidStatus
	}

	log := logger.FromContext(ctx).With(zap.String("file_id", req.FileID), zap.String("status", req.Status))

	fileID, err := uuid.Parse(req.FileID)
	if err != nil {
		log.Warn("reconcile for unparseable file id ignored")
		metrics.Reconciliations.WithLabelValues("noop").Inc()
		return nil
	}

	variants := make([]Variant, 0, len(req.Variants))
	for _, v := range req.Variants {
		transform := v.Transform
		if transform == nil {
			transform = map[string]any{}
		}
		variants = append(variants, Variant{
			ID:         uuid.New(),
			FileID:     fileID,
			VariantKey: v.VariantKey,
			StorageKey: v.StorageKey,
			URL:        v.URL,
			Transform:  transform,
			SizeBytes:  v.SizeBytes,
		})
	}

	from := []Status{StatusProcessing, StatusCompleted, StatusFailed}
	if err := s.repo.ReplaceVariants(ctx, fileID, from, status, variants); err != nil {
		switch {
		case errors.Is(err, ErrFileNotFound):
			log.Info("reconcile for deleted file ignored")
			metrics.Reconciliations.WithLabelValues("noop").Inc()
			return nil
		case errors.Is(err, ErrInvalidState):
			log.Warn("reconcile for file that was never completed ignored")
			metrics.Reconciliations.WithLabelValues("noop").Inc()
			return nil
		}
		metrics.Reconciliations.WithLabelValues("error").Inc()
		return err
	}

	metrics.Reconciliations.WithLabelValues("applied").Inc()
	log.Info("file reconciled", zap.Int("variants", len(variants)))
	return nil
}

// List returns the owner's files with their variants, newest first.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]File, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Get returns one owned file with its variants.
func (s *Service) Get(ctx context.Context, ownerID, fileID uuid.UUID) (File, error) {
	return s.owned(ctx, ownerID, fileID)
}

// Download opens the primary blob of an owned file. The returned SizeBytes
// is the blob's stored length.
func (s *Service) Download(ctx context.Context, ownerID, fileID uuid.UUID) (File, io.ReadCloser, error) {
	f, err := s.owned(ctx, ownerID, fileID)
	if err != nil {
		return File{}, nil, err
	}

	info, err := s.store.Stat(ctx, f.StorageKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return File{}, nil, ErrFileNotFound
		}
		return File{}, nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	f.SizeBytes = info.Size

	reader, err := s.store.Get(ctx, f.StorageKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return File{}, nil, ErrFileNotFound
		}
		return File{}, nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return f, reader, nil
}

// Delete removes the primary blob, then variant blobs, then the metadata rows.
// A failing variant blob is logged and skipped. A failing primary blob aborts
// before any metadata is touched.
func (s *Service) Delete(ctx context.Context, ownerID, fileID uuid.UUID) error {
	f, err := s.owned(ctx, ownerID, fileID)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx).With(zap.String("file_id", f.ID.String()))

	if err := s.store.Remove(ctx, f.StorageKey); err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrStorage, f.StorageKey, err)
	}

	for _, v := range f.Variants {
		if v.StorageKey == "" || v.StorageKey == f.StorageKey {
			continue
		}
		if err := s.store.Remove(ctx, v.StorageKey); err != nil {
			log.Warn("variant blob not removed",
				zap.String("variant_key", v.VariantKey),
				zap.String("storage_key", v.StorageKey),
				zap.Error(err),
			)
		}
	}

	if err := s.repo.Delete(ctx, f.ID, ""); err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil
		}
		return err
	}
	log.Info("file deleted", zap.Int("variants", len(f.Variants)))
	return nil
}

// Reprocess publishes a fresh job for a file that already left UPLOADED.
// uuid.Nil as ownerID skips the ownership check for operator tooling.
func (s *Service) Reprocess(ctx context.Context, ownerID, fileID uuid.UUID) (File, error) {
	f, err := s.owned(ctx, ownerID, fileID)
	if err != nil {
		return File{}, err
	}

	jobType, processable := Classify(f.MimeType).JobType()
	if !processable {
		return File{}, ErrInvalidState
	}

	from := []Status{StatusProcessing, StatusCompleted, StatusFailed}
	if err := s.repo.TransitionStatus(ctx, f.ID, from, StatusProcessing); err != nil {
		return File{}, err
	}
	f.Status = StatusProcessing

	if err := s.dispatch(ctx, f, jobType); err != nil {
		return File{}, err
	}
	return f, nil
}

func (s *Service) owned(ctx context.Context, ownerID, fileID uuid.UUID) (File, error) {
	f, err := s.repo.Get(ctx, fileID)
	if err != nil {
		return File{}, err
	}
	if ownerID != uuid.Nil && f.OwnerID != ownerID {
		return File{}, ErrForbidden
	}
	return f, nil
}
