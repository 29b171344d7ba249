package file

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/abduss/cloudnest/internal/callback"
	"github.com/abduss/cloudnest/internal/config"
	"github.com/abduss/cloudnest/internal/objectstore/objectstoretest"
	"github.com/abduss/cloudnest/internal/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	svc   *Service
	repo  *fakeRepo
	store *objectstoretest.Store
	pub   *fakePublisher
	owner uuid.UUID
}

func newHarness() *harness {
	repo := newFakeRepo()
	store := objectstoretest.NewStore()
	pub := &fakePublisher{}
	svc := NewService(repo, store, pub, config.UploadConfig{URLTTL: 10 * time.Minute, MaxBytes: 1 << 30})
	return &harness{svc: svc, repo: repo, store: store, pub: pub, owner: uuid.New()}
}

func (h *harness) upload(t *testing.T, name, contentType string) UploadTicket {
	t.Helper()
	ticket, err := h.svc.RequestUpload(context.Background(), h.owner, name, contentType, 1024)
	require.NoError(t, err)
	h.store.Seed(ticket.StorageKey, []byte("payload"), contentType)
	return ticket
}

func (h *harness) complete(t *testing.T, ticket UploadTicket) {
	t.Helper()
	_, err := h.svc.CompleteUpload(context.Background(), h.owner, ticket.StorageKey)
	require.NoError(t, err)
}

func TestRequestUploadRejectsDisallowedTypeBeforeAnyWrite(t *testing.T) {
	h := newHarness()

	_, err := h.svc.RequestUpload(context.Background(), h.owner, "evil.bin", "application/x-executable", 1024)
	require.ErrorIs(t, err, ErrUnsupportedMediaType)
	assert.Empty(t, h.repo.files)
	assert.Empty(t, h.store.Presigned)
}

func TestRequestUploadRejectsBadSize(t *testing.T) {
	h := newHarness()
	for _, size := range []int64{0, -1, 2 << 30} {
		_, err := h.svc.RequestUpload(context.Background(), h.owner, "a.png", "image/png", size)
		require.ErrorIs(t, err, ErrInvalidUpload, "size %d", size)
	}
	assert.Empty(t, h.repo.files)
}

func TestRequestUploadPersistsUploadedFile(t *testing.T) {
	h := newHarness()

	ticket, err := h.svc.RequestUpload(context.Background(), h.owner, "Résumé final.PDF", "application/pdf; charset=binary", 2048)
	require.NoError(t, err)

	prefix := h.owner.String() + "/"
	require.True(t, strings.HasPrefix(ticket.StorageKey, prefix))
	assert.True(t, strings.HasSuffix(ticket.StorageKey, "_Resume_final.PDF"), ticket.StorageKey)
	assert.NotEmpty(t, ticket.UploadURL)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), ticket.ExpiresAt, 5*time.Second)

	f, err := h.repo.Get(context.Background(), ticket.FileID)
	require.NoError(t, err)
	assert.Equal(t, StatusUploaded, f.Status)
	assert.Equal(t, "application/pdf", f.MimeType)
	assert.Equal(t, h.store.URL(ticket.StorageKey), f.URL)
	assert.Equal(t, int64(2048), f.SizeBytes)
}

func TestRequestUploadKeysNeverCollide(t *testing.T) {
	h := newHarness()
	a, err := h.svc.RequestUpload(context.Background(), h.owner, "same.png", "image/png", 10)
	require.NoError(t, err)
	b, err := h.svc.RequestUpload(context.Background(), h.owner, "same.png", "image/png", 10)
	require.NoError(t, err)
	assert.NotEqual(t, a.StorageKey, b.StorageKey)
}

func TestCompleteUploadPublishesOneJobPerProcessableType(t *testing.T) {
	cases := []struct {
		contentType string
		topic       string
		jobType     queue.JobType
	}{
		{"image/jpeg", queue.TopicImage, queue.JobImage},
		{"video/mp4", queue.TopicVideo, queue.JobVideo},
		{"application/pdf", queue.TopicPDF, queue.JobPDF},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", queue.TopicDocument, queue.JobDocument},
		{"text/plain", queue.TopicDocument, queue.JobDocument},
	}
	for _, tc := range cases {
		t.Run(tc.contentType, func(t *testing.T) {
			h := newHarness()
			ticket := h.upload(t, "file", tc.contentType)

			f, err := h.svc.CompleteUpload(context.Background(), h.owner, ticket.StorageKey)
			require.NoError(t, err)
			assert.Equal(t, StatusProcessing, f.Status)
			assert.Empty(t, f.Variants)

			require.Len(t, h.pub.jobs, 1)
			got := h.pub.jobs[0]
			assert.Equal(t, tc.topic, got.topic)
			assert.Equal(t, queue.Job{
				FileID:     ticket.FileID.String(),
				StorageKey: ticket.StorageKey,
				MimeType:   tc.contentType,
				JobType:    tc.jobType,
			}, got.job)
		})
	}
}

func TestCompleteUploadOtherTypeCompletesWithOriginal(t *testing.T) {
	for _, ct := range []string{"application/zip", "audio/mpeg", "image/svg+xml"} {
		t.Run(ct, func(t *testing.T) {
			h := newHarness()
			ticket := h.upload(t, "bundle", ct)

			f, err := h.svc.CompleteUpload(context.Background(), h.owner, ticket.StorageKey)
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, f.Status)
			require.Len(t, f.Variants, 1)
			v := f.Variants[0]
			assert.Equal(t, OriginalVariantKey, v.VariantKey)
			assert.Equal(t, ticket.StorageKey, v.StorageKey)
			assert.Equal(t, f.URL, v.URL)
			assert.Empty(t, v.Transform)
			assert.Empty(t, h.pub.jobs)
		})
	}
}

func TestCompleteUploadErrors(t *testing.T) {
	h := newHarness()
	ticket := h.upload(t, "a.png", "image/png")

	_, err := h.svc.CompleteUpload(context.Background(), h.owner, "missing/key")
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = h.svc.CompleteUpload(context.Background(), uuid.New(), ticket.StorageKey)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.svc.CompleteUpload(context.Background(), h.owner, ticket.StorageKey)
	require.NoError(t, err)

	// status never moves backwards
	_, err = h.svc.CompleteUpload(context.Background(), h.owner, ticket.StorageKey)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Len(t, h.pub.jobs, 1)
}

func TestCompleteUploadRecordsStoredSize(t *testing.T) {
	for _, ct := range []string{"image/png", "application/zip"} {
		t.Run(ct, func(t *testing.T) {
			h := newHarness()
			ticket := h.upload(t, "a", ct)

			f, err := h.svc.CompleteUpload(context.Background(), h.owner, ticket.StorageKey)
			require.NoError(t, err)
			assert.EqualValues(t, len("payload"), f.SizeBytes)

			stored, err := h.repo.Get(context.Background(), ticket.FileID)
			require.NoError(t, err)
			assert.EqualValues(t, len("payload"), stored.SizeBytes)
			for _, v := range stored.Variants {
				assert.EqualValues(t, len("payload"), v.SizeBytes)
			}
		})
	}
}

func TestCompleteUploadRequiresStoredBlob(t *testing.T) {
	h := newHarness()
	ticket, err := h.svc.RequestUpload(context.Background(), h.owner, "a.png", "image/png", 10)
	require.NoError(t, err)

	_, err = h.svc.CompleteUpload(context.Background(), h.owner, ticket.StorageKey)
	assert.ErrorIs(t, err, ErrFileNotFound)

	stored, err := h.repo.Get(context.Background(), ticket.FileID)
	require.NoError(t, err)
	assert.Equal(t, StatusUploaded, stored.Status)
	assert.Empty(t, h.pub.jobs)
}

func TestCompleteUploadRejectsOversizedBlob(t *testing.T) {
	h := newHarness()
	h.svc.maxBytes = 4
	ticket, err := h.svc.RequestUpload(context.Background(), h.owner, "a.png", "image/png", 4)
	require.NoError(t, err)
	h.store.Seed(ticket.StorageKey, []byte("too large"), "image/png")

	_, err = h.svc.CompleteUpload(context.Background(), h.owner, ticket.StorageKey)
	assert.ErrorIs(t, err, ErrInvalidUpload)
	assert.Empty(t, h.pub.jobs)
}

func TestCompleteUploadSurvivesPublishFailure(t *testing.T) {
	h := newHarness()
	h.pub.err = errors.New("nats: no servers available")
	ticket := h.upload(t, "clip.mp4", "video/mp4")

	f, err := h.svc.CompleteUpload(context.Background(), h.owner, ticket.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, f.Status)

	stored, err := h.repo.Get(context.Background(), ticket.FileID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, stored.Status)
}

func variantList(keys ...string) []callback.Variant {
	out := make([]callback.Variant, 0, len(keys))
	for _, k := range keys {
		out = append(out, callback.Variant{
			VariantKey: k,
			StorageKey: "variants/" + k + "/x.png",
			URL:        "http://objects.test/cloudnest/variants/" + k + "/x.png",
			Transform:  map[string]any{"w": 200},
			SizeBytes:  10,
		})
	}
	return out
}

func TestReconcileIsIdempotentOnVariantReplacement(t *testing.T) {
	h := newHarness()
	ticket := h.upload(t, "a.jpg", "image/jpeg")
	_, err := h.svc.CompleteUpload(context.Background(), h.owner, ticket.StorageKey)
	require.NoError(t, err)

	req := callback.UpdateRequest{
		Version:  callback.Version,
		FileID:   ticket.FileID.String(),
		Status:   callback.StatusCompleted,
		Variants: variantList("thumbnail", "medium", "original"),
	}
	require.NoError(t, h.svc.Reconcile(context.Background(), req))
	require.NoError(t, h.svc.Reconcile(context.Background(), req))

	f, err := h.svc.Get(context.Background(), h.owner, ticket.FileID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, f.Status)
	require.Len(t, f.Variants, 3)

	seen := map[string]int{}
	for _, v := range f.Variants {
		seen[v.VariantKey]++
	}
	assert.Equal(t, map[string]int{"thumbnail": 1, "medium": 1, "original": 1}, seen)
}

func TestReconcileReplacesNotAppends(t *testing.T) {
	h := newHarness()
	ticket := h.upload(t, "a.jpg", "image/jpeg")
	h.complete(t, ticket)

	require.NoError(t, h.svc.Reconcile(context.Background(), callback.UpdateRequest{
		FileID: ticket.FileID.String(), Status: callback.StatusCompleted,
		Variants: variantList("thumbnail", "medium", "original"),
	}))
	require.NoError(t, h.svc.Reconcile(context.Background(), callback.UpdateRequest{
		FileID: ticket.FileID.String(), Status: callback.StatusFailed,
	}))

	f, err := h.repo.Get(context.Background(), ticket.FileID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, f.Status)
	assert.Empty(t, f.Variants)
}

func TestReconcileOnDeletedFileIsNoop(t *testing.T) {
	h := newHarness()
	ticket := h.upload(t, "a.jpg", "image/jpeg")
	_, err := h.svc.CompleteUpload(context.Background(), h.owner, ticket.StorageKey)
	require.NoError(t, err)
	require.NoError(t, h.svc.Delete(context.Background(), h.owner, ticket.FileID))

	err = h.svc.Reconcile(context.Background(), callback.UpdateRequest{
		Version:  1,
		FileID:   ticket.FileID.String(),
		Status:   callback.StatusCompleted,
		Variants: variantList("thumbnail"),
	})
	require.NoError(t, err)
	assert.Empty(t, h.repo.files)
	assert.Zero(t, h.repo.replaced)
}

func TestReconcileIgnoresFileStillUploaded(t *testing.T) {
	h := newHarness()
	ticket := h.upload(t, "a.jpg", "image/jpeg")

	require.NoError(t, h.svc.Reconcile(context.Background(), callback.UpdateRequest{
		Version:  callback.Version,
		FileID:   ticket.FileID.String(),
		Status:   callback.StatusCompleted,
		Variants: variantList("thumbnail", "medium", "original"),
	}))

	f, err := h.repo.Get(context.Background(), ticket.FileID)
	require.NoError(t, err)
	assert.Equal(t, StatusUploaded, f.Status)
	assert.Empty(t, f.Variants)
	assert.Zero(t, h.repo.replaced)

	// the file can still be completed normally afterwards
	h.complete(t, ticket)
	assert.Len(t, h.pub.jobs, 1)
}

func TestReconcileValidatesStatusAndVersion(t *testing.T) {
	h := newHarness()
	id := uuid.NewString()

	assert.ErrorIs(t, h.svc.Reconcile(context.Background(), callback.UpdateRequest{FileID: id, Status: "PROCESSING"}), ErrInvalidStatus)
	assert.ErrorIs(t, h.svc.Reconcile(context.Background(), callback.UpdateRequest{FileID: id, Status: callback.StatusCompleted, Version: 2}), ErrUnsupportedVersion)
	assert.NoError(t, h.svc.Reconcile(context.Background(), callback.UpdateRequest{FileID: "not-a-uuid", Status: callback.StatusFailed}))
}

func TestDeleteRemovesPrimaryVariantsAndMetadata(t *testing.T) {
	h := newHarness()
	ticket := h.upload(t, "a.jpg", "image/jpeg")
	h.complete(t, ticket)
	variants := variantList("thumbnail", "medium")
	variants = append(variants, callback.Variant{VariantKey: "original", StorageKey: ticket.StorageKey})
	for _, v := range variants[:2] {
		h.store.Seed(v.StorageKey, []byte("v"), "image/png")
	}
	require.NoError(t, h.svc.Reconcile(context.Background(), callback.UpdateRequest{
		FileID: ticket.FileID.String(), Status: callback.StatusCompleted, Variants: variants,
	}))

	require.NoError(t, h.svc.Delete(context.Background(), h.owner, ticket.FileID))

	assert.Empty(t, h.store.Keys())
	assert.Equal(t, []string{ticket.StorageKey, variants[0].StorageKey, variants[1].StorageKey}, h.store.Removed)
	assert.Empty(t, h.repo.files)
}

func TestDeleteContinuesPastVariantFailure(t *testing.T) {
	h := newHarness()
	ticket := h.upload(t, "a.jpg", "image/jpeg")
	h.complete(t, ticket)
	variants := variantList("thumbnail", "medium")
	h.store.FailRemove[variants[0].StorageKey] = objectstoretest.ErrInjected
	require.NoError(t, h.svc.Reconcile(context.Background(), callback.UpdateRequest{
		FileID: ticket.FileID.String(), Status: callback.StatusCompleted, Variants: variants,
	}))

	require.NoError(t, h.svc.Delete(context.Background(), h.owner, ticket.FileID))
	assert.Contains(t, h.store.Removed, variants[1].StorageKey)
	assert.Empty(t, h.repo.files)
}

func TestDeleteAbortsWhenPrimaryBlobFails(t *testing.T) {
	h := newHarness()
	ticket := h.upload(t, "a.jpg", "image/jpeg")
	h.store.FailRemove[ticket.StorageKey] = objectstoretest.ErrInjected

	err := h.svc.Delete(context.Background(), h.owner, ticket.FileID)
	require.ErrorIs(t, err, ErrStorage)
	assert.Len(t, h.repo.files, 1)
}

func TestDeleteChecksOwnership(t *testing.T) {
	h := newHarness()
	ticket := h.upload(t, "a.jpg", "image/jpeg")

	assert.ErrorIs(t, h.svc.Delete(context.Background(), uuid.New(), ticket.FileID), ErrForbidden)
	assert.ErrorIs(t, h.svc.Delete(context.Background(), h.owner, uuid.New()), ErrFileNotFound)
	assert.Empty(t, h.store.Removed)
}

func TestDownloadStreamsPrimaryBlob(t *testing.T) {
	h := newHarness()
	ticket := h.upload(t, "a.txt", "text/plain")

	f, r, err := h.svc.Download(context.Background(), h.owner, ticket.FileID)
	require.NoError(t, err)
	defer r.Close()
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
	assert.Equal(t, "a.txt", f.Filename)
	assert.EqualValues(t, len(body), f.SizeBytes, "size reflects the blob, not the declared 1024")

	missing, err := h.svc.RequestUpload(context.Background(), h.owner, "b.txt", "text/plain", 5)
	require.NoError(t, err)
	_, _, err = h.svc.Download(context.Background(), h.owner, missing.FileID)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestReprocessRepublishesJob(t *testing.T) {
	h := newHarness()
	ticket := h.upload(t, "a.pdf", "application/pdf")

	_, err := h.svc.Reprocess(context.Background(), h.owner, ticket.FileID)
	assert.ErrorIs(t, err, ErrInvalidState, "UPLOADED files are completed, not reprocessed")

	_, err = h.svc.CompleteUpload(context.Background(), h.owner, ticket.StorageKey)
	require.NoError(t, err)
	require.NoError(t, h.svc.Reconcile(context.Background(), callback.UpdateRequest{
		FileID: ticket.FileID.String(), Status: callback.StatusFailed,
	}))

	f, err := h.svc.Reprocess(context.Background(), uuid.Nil, ticket.FileID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, f.Status)
	require.Len(t, h.pub.jobs, 2)
	assert.Equal(t, queue.TopicPDF, h.pub.jobs[1].topic)

	h.pub.err = errors.New("down")
	_, err = h.svc.Reprocess(context.Background(), h.owner, ticket.FileID)
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestReprocessRejectsUnprocessableType(t *testing.T) {
	h := newHarness()
	ticket := h.upload(t, "a.zip", "application/zip")
	_, err := h.svc.CompleteUpload(context.Background(), h.owner, ticket.StorageKey)
	require.NoError(t, err)

	_, err = h.svc.Reprocess(context.Background(), h.owner, ticket.FileID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestReapOrphansRemovesStaleUploadedOnly(t *testing.T) {
	h := newHarness()
	stale := h.upload(t, "stale.png", "image/png")
	fresh := h.upload(t, "fresh.png", "image/png")
	done := h.upload(t, "done.png", "image/png")
	_, err := h.svc.CompleteUpload(context.Background(), h.owner, done.StorageKey)
	require.NoError(t, err)

	h.repo.backdate(stale.FileID, 48*time.Hour)
	h.repo.backdate(done.FileID, 48*time.Hour)

	n, err := h.svc.ReapOrphans(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = h.repo.Get(context.Background(), stale.FileID)
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.False(t, h.store.Has(stale.StorageKey))

	_, err = h.repo.Get(context.Background(), fresh.FileID)
	assert.NoError(t, err)
	_, err = h.repo.Get(context.Background(), done.FileID)
	assert.NoError(t, err)
}
