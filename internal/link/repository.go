package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoTimeout = 5 * time.Second

// Repository persists share links.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a link repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const linkColumns = `id, file_id, owner_id, token, password_hash, expires_at, view_count, created_at`

func scanLink(row pgx.Row) (Link, error) {
	var l Link
	err := row.Scan(&l.ID, &l.FileID, &l.OwnerID, &l.Token, &l.PasswordHash, &l.ExpiresAt, &l.ViewCount, &l.CreatedAt)
	l.HasPassword = l.PasswordHash != nil
	return l, err
}

// Create inserts a link. A duplicate token yields ErrTokenTaken.
func (r *Repository) Create(ctx context.Context, l Link) (Link, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO share_links (id, file_id, owner_id, token, password_hash, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + linkColumns + `;`

	stored, err := scanLink(r.pool.QueryRow(ctx, query, l.ID, l.FileID, l.OwnerID, l.Token, l.PasswordHash, l.ExpiresAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "share_links_token_key" {
			return Link{}, ErrTokenTaken
		}
		return Link{}, fmt.Errorf("create link: %w", err)
	}
	return stored, nil
}

// GetByToken loads a link by its public token.
func (r *Repository) GetByToken(ctx context.Context, token string) (Link, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	l, err := scanLink(r.pool.QueryRow(ctx, `SELECT `+linkColumns+` FROM share_links WHERE token = $1;`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Link{}, ErrLinkNotFound
		}
		return Link{}, fmt.Errorf("get link: %w", err)
	}
	return l, nil
}

// Get loads a link by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Link, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	l, err := scanLink(r.pool.QueryRow(ctx, `SELECT `+linkColumns+` FROM share_links WHERE id = $1;`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Link{}, ErrLinkNotFound
		}
		return Link{}, fmt.Errorf("get link: %w", err)
	}
	return l, nil
}

// ListByOwner returns the owner's links, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Link, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+linkColumns+` FROM share_links WHERE owner_id = $1 ORDER BY created_at DESC;`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	links := []Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}

// IncrementViews adds one view atomically and returns the new count.
func (r *Repository) IncrementViews(ctx context.Context, id uuid.UUID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var count int
	err := r.pool.QueryRow(ctx, `UPDATE share_links SET view_count = view_count + 1 WHERE id = $1 RETURNING view_count;`, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrLinkNotFound
		}
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return count, nil
}

// Delete removes a link.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM share_links WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}
