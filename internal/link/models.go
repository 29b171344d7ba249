package link

import (
	"time"

	"github.com/google/uuid"
)

// Link is a public share link for a file.
type Link struct {
	ID           uuid.UUID  `json:"id"`
	FileID       uuid.UUID  `json:"fileId"`
	OwnerID      uuid.UUID  `json:"ownerId"`
	Token        string     `json:"token"`
	URL          string     `json:"url"`
	PasswordHash *string    `json:"-"`
	HasPassword  bool       `json:"hasPassword"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	ViewCount    int        `json:"viewCount"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// CreateInput carries the optional protections for a new link.
type CreateInput struct {
	FileID    uuid.UUID
	Password  *string
	ExpiresAt *time.Time
}

// AccessResult is what a successful access resolves to.
type AccessResult struct {
	RedirectURL string
	ViewCount   int
}
