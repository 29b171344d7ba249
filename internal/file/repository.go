package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoTimeout = 5 * time.Second

// Repository provides access to file and variant metadata.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a new file repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const fileColumns = `id, owner_id, filename, storage_key, url, size_bytes, mime_type, status, created_at, updated_at`

func scanFile(row pgx.Row) (File, error) {
	var f File
	err := row.Scan(&f.ID, &f.OwnerID, &f.Filename, &f.StorageKey, &f.URL, &f.SizeBytes, &f.MimeType, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

// Create inserts a new file row.
func (r *Repository) Create(ctx context.Context, f File) (File, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO files (id, owner_id, filename, storage_key, url, size_bytes, mime_type, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + fileColumns + `;`

	stored, err := scanFile(r.pool.QueryRow(ctx, query,
		f.ID, f.OwnerID, f.Filename, f.StorageKey, f.URL, f.SizeBytes, f.MimeType, f.Status,
	))
	if err != nil {
		return File{}, fmt.Errorf("create file: %w", err)
	}
	stored.Variants = []Variant{}
	return stored, nil
}

// Get fetches a file and its variants by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (File, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	f, err := scanFile(r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1;`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return File{}, ErrFileNotFound
		}
		return File{}, fmt.Errorf("get file: %w", err)
	}
	return r.withVariants(ctx, f)
}

// GetByStorageKey fetches a file and its variants by storage key.
func (r *Repository) GetByStorageKey(ctx context.Context, key string) (File, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	f, err := scanFile(r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE storage_key = $1;`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return File{}, ErrFileNotFound
		}
		return File{}, fmt.Errorf("get file by key: %w", err)
	}
	return r.withVariants(ctx, f)
}

func (r *Repository) withVariants(ctx context.Context, f File) (File, error) {
	byFile, err := r.variantsFor(ctx, []uuid.UUID{f.ID})
	if err != nil {
		return File{}, err
	}
	f.Variants = byFile[f.ID]
	if f.Variants == nil {
		f.Variants = []Variant{}
	}
	return f, nil
}

// ListByOwner returns the owner's files, newest first, with variants attached.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]File, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+fileColumns+` FROM files WHERE owner_id = $1 ORDER BY created_at DESC;`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	files, err := collectFiles(rows)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return files, nil
	}

	ids := make([]uuid.UUID, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	byFile, err := r.variantsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range files {
		files[i].Variants = byFile[files[i].ID]
		if files[i].Variants == nil {
			files[i].Variants = []Variant{}
		}
	}
	return files, nil
}

// ListUploadedBefore returns up to limit files still UPLOADED and created before cutoff.
func (r *Repository) ListUploadedBefore(ctx context.Context, cutoff time.Time, limit int) ([]File, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT ` + fileColumns + `
FROM files
WHERE status = $1 AND created_at < $2
ORDER BY created_at
LIMIT $3;`

	rows, err := r.pool.Query(ctx, query, StatusUploaded, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list orphaned files: %w", err)
	}
	return collectFiles(rows)
}

func collectFiles(rows pgx.Rows) ([]File, error) {
	defer rows.Close()
	files := []File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}

func (r *Repository) variantsFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]Variant, error) {
	query := `
SELECT id, file_id, variant_key, storage_key, url, transform, COALESCE(size_bytes, 0), created_at
FROM variants
WHERE file_id = ANY($1)
ORDER BY created_at, variant_key;`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]Variant, len(ids))
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.FileID, &v.VariantKey, &v.StorageKey, &v.URL, &v.Transform, &v.SizeBytes, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		if v.Transform == nil {
			v.Transform = map[string]any{}
		}
		out[v.FileID] = append(out[v.FileID], v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variants: %w", err)
	}
	return out, nil
}

// TransitionStatus moves a file to status "to" when its current status is one of from.
// It returns ErrFileNotFound for a missing row and ErrInvalidState when the current status does not match.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
UPDATE files SET status = $2, updated_at = NOW()
WHERE id = $1 AND status = ANY($3);`, id, to, statusStrings(from))
	if err != nil {
		return fmt.Errorf("update file status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM files WHERE id = $1);`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check file: %w", err)
	}
	if !exists {
		return ErrFileNotFound
	}
	return ErrInvalidState
}

// UpdateSize records the stored length of the primary blob.
func (r *Repository) UpdateSize(ctx context.Context, id uuid.UUID, size int64) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `UPDATE files SET size_bytes = $2, updated_at = NOW() WHERE id = $1;`, id, size)
	if err != nil {
		return fmt.Errorf("update file size: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

// ReplaceVariants locks the file row, deletes every variant, inserts variants
// and sets the status, all in one transaction. An empty from accepts any
// current status. A missing row yields ErrFileNotFound and changes nothing.
func (r *Repository) ReplaceVariants(ctx context.Context, id uuid.UUID, from []Status, to Status, variants []Variant) (err error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin reconcile: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current Status
	if err = tx.QueryRow(ctx, `SELECT status FROM files WHERE id = $1 FOR UPDATE;`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrFileNotFound
		}
		return fmt.Errorf("lock file: %w", err)
	}
	if len(from) > 0 && !containsStatus(from, current) {
		return ErrInvalidState
	}

	if _, err = tx.Exec(ctx, `DELETE FROM variants WHERE file_id = $1;`, id); err != nil {
		return fmt.Errorf("delete variants: %w", err)
	}

	if len(variants) > 0 {
		rows := make([][]any, 0, len(variants))
		for _, v := range variants {
			transform := v.Transform
			if transform == nil {
				transform = map[string]any{}
			}
			rows = append(rows, []any{v.ID, id, v.VariantKey, v.StorageKey, v.URL, transform, v.SizeBytes})
		}
		if _, err = tx.CopyFrom(ctx,
			pgx.Identifier{"variants"},
			[]string{"id", "file_id", "variant_key", "storage_key", "url", "transform", "size_bytes"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("insert variants: %w", err)
		}
	}

	if _, err = tx.Exec(ctx, `UPDATE files SET status = $2, updated_at = NOW() WHERE id = $1;`, id, to); err != nil {
		return fmt.Errorf("update file status: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reconcile: %w", err)
	}
	return nil
}

// Delete removes the file row; variants and share links cascade. A non-empty
// onlyIf restricts the delete to rows in that status.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID, onlyIf Status) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `DELETE FROM files WHERE id = $1 AND ($2 = '' OR status = $2);`
	tag, err := r.pool.Exec(ctx, query, id, string(onlyIf))
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

func statusStrings(in []Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func containsStatus(in []Status, s Status) bool {
	for _, candidate := range in {
		if candidate == s {
			return true
		}
	}
	return false
}
