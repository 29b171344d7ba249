package link

import "errors"

var (
	// ErrLinkNotFound signals an unknown token or link id.
	ErrLinkNotFound = errors.New("link not found")
	// ErrLinkExpired is returned once a link's expiry has passed.
	ErrLinkExpired = errors.New("link expired")
	// ErrInvalidPassword is returned when a protected link gets a wrong or missing password.
	ErrInvalidPassword = errors.New("invalid link password")
	// ErrForbidden indicates the caller does not own the file or link.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidExpiry rejects an expiry that is already in the past.
	ErrInvalidExpiry = errors.New("expiry must be in the future")
	// ErrTokenTaken is returned by the repository on a token collision.
	ErrTokenTaken = errors.New("token already in use")
)
