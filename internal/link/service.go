package link

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abduss/cloudnest/internal/config"
	"github.com/abduss/cloudnest/internal/file"
	"github.com/abduss/cloudnest/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const maxTokenAttempts = 5

type linkStore interface {
	Create(ctx context.Context, l Link) (Link, error)
	Get(ctx context.Context, id uuid.UUID) (Link, error)
	GetByToken(ctx context.Context, token string) (Link, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Link, error)
	IncrementViews(ctx context.Context, id uuid.UUID) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// fileLookup resolves files by id. uuid.Nil as owner skips the ownership check.
type fileLookup interface {
	Get(ctx context.Context, ownerID, fileID uuid.UUID) (file.File, error)
}

type presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Service creates and resolves share links.
type Service struct {
	links       linkStore
	files       fileLookup
	presign     presigner
	baseURL     string
	tokenLength int
	redirectTTL time.Duration
	bcryptCost  int
	nowFunc     func() time.Time
}

// NewService wires a link service.
func NewService(links linkStore, files fileLookup, presign presigner, cfg config.LinkConfig, bcryptCost int) *Service {
	length := cfg.TokenLength
	if length == 0 {
		length = defaultTokenLen
	}
	if length < minTokenLength {
		length = minTokenLength
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		links:       links,
		files:       files,
		presign:     presign,
		baseURL:     strings.TrimRight(cfg.PublicBaseURL, "/"),
		tokenLength: length,
		redirectTTL: cfg.RedirectTTL,
		bcryptCost:  bcryptCost,
		nowFunc:     time.Now,
	}
}

// Create issues a link for a file the owner holds.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (Link, error) {
	f, err := s.files.Get(ctx, ownerID, in.FileID)
	if err != nil {
		switch {
		case errors.Is(err, file.ErrFileNotFound):
			return Link{}, file.ErrFileNotFound
		case errors.Is(err, file.ErrForbidden):
			return Link{}, ErrForbidden
		}
		return Link{}, err
	}

	var expiresAt *time.Time
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(s.nowFunc()) {
			return Link{}, ErrInvalidExpiry
		}
		utc := in.ExpiresAt.UTC()
		expiresAt = &utc
	}

	var passwordHash *string
	if in.Password != nil && *in.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*in.Password), s.bcryptCost)
		if err != nil {
			return Link{}, fmt.Errorf("hash link password: %w", err)
		}
		h := string(hashed)
		passwordHash = &h
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := generateToken(s.tokenLength)
		if err != nil {
			return Link{}, err
		}
		stored, err := s.links.Create(ctx, Link{
			ID:           uuid.New(),
			FileID:       f.ID,
			OwnerID:      ownerID,
			Token:        token,
			PasswordHash: passwordHash,
			ExpiresAt:    expiresAt,
		})
		if errors.Is(err, ErrTokenTaken) {
			continue
		}
		if err != nil {
			return Link{}, err
		}
		return s.decorate(stored), nil
	}
	return Link{}, fmt.Errorf("create link: %w after %d attempts", ErrTokenTaken, maxTokenAttempts)
}

// Access resolves a token. Expiry is checked before the password, so an
// expired link reports ErrLinkExpired whatever password is supplied.
func (s *Service) Access(ctx context.Context, token, password string) (AccessResult, error) {
	l, err := s.links.GetByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return AccessResult{}, err
	}

	if l.ExpiresAt != nil && s.nowFunc().After(*l.ExpiresAt) {
		return AccessResult{}, ErrLinkExpired
	}

	if l.PasswordHash != nil {
		if password == "" || bcrypt.CompareHashAndPassword([]byte(*l.PasswordHash), []byte(password)) != nil {
			return AccessResult{}, ErrInvalidPassword
		}
	}

	f, err := s.files.Get(ctx, uuid.Nil, l.FileID)
	if err != nil {
		if errors.Is(err, file.ErrFileNotFound) {
			return AccessResult{}, ErrLinkNotFound
		}
		return AccessResult{}, err
	}

	target, err := s.presign.PresignGet(ctx, f.StorageKey, s.redirectTTL)
	if err != nil {
		return AccessResult{}, fmt.Errorf("%w: %v", file.ErrStorage, err)
	}

	views, err := s.links.IncrementViews(ctx, l.ID)
	if err != nil {
		return AccessResult{}, err
	}

	logger.FromContext(ctx).Info("share link accessed",
		zap.String("link_id", l.ID.String()),
		zap.String("file_id", f.ID.String()),
		zap.Int("views", views),
	)
	return AccessResult{RedirectURL: target, ViewCount: views}, nil
}

// List returns the owner's links.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]Link, error) {
	links, err := s.links.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range links {
		links[i] = s.decorate(links[i])
	}
	return links, nil
}

// Delete removes an owned link.
func (s *Service) Delete(ctx context.Context, ownerID, linkID uuid.UUID) error {
	l, err := s.links.Get(ctx, linkID)
	if err != nil {
		return err
	}
	if l.OwnerID != ownerID {
		return ErrForbidden
	}
	return s.links.Delete(ctx, linkID)
}

func (s *Service) decorate(l Link) Link {
	l.URL = s.baseURL + "/s/" + l.Token
	l.HasPassword = l.PasswordHash != nil
	return l
}
