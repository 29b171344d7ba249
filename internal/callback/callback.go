// Package callback defines the JSON contract workers use to report job
// outcomes back to the upload coordinator.
package callback

// Version is the contract revision workers emit. Receivers treat 0 as Version.
const Version = 1

// Path is the coordinator route that accepts UpdateRequest bodies.
const Path = "/internal/update"

// TokenHeader carries the shared internal token.
const TokenHeader = "X-Internal-Token"

// Terminal statuses a worker may report.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// UpdateRequest is the body of a worker callback.
type UpdateRequest struct {
	Version  int       `json:"version"`
	FileID   string    `json:"fileId"`
	Status   string    `json:"status"`
	Variants []Variant `json:"variants"`
}

// Variant describes one derived or original rendition.
type Variant struct {
	VariantKey string         `json:"variantKey"`
	StorageKey string         `json:"storageKey"`
	URL        string         `json:"url"`
	Transform  map[string]any `json:"transform"`
	SizeBytes  int64          `json:"sizeBytes"`
}
