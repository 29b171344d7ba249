package file

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a File.
type Status string

const (
	StatusUploaded   Status = "UPLOADED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// File is the metadata record for an uploaded blob.
type File struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"ownerId"`
	Filename   string    `json:"filename"`
	StorageKey string    `json:"storageKey"`
	URL        string    `json:"url"`
	SizeBytes  int64     `json:"sizeBytes"`
	MimeType   string    `json:"mimeType"`
	Status     Status    `json:"status"`
	Variants   []Variant `json:"variants"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Variant is a rendition of a File. "original" points at the uploaded blob itself.
type Variant struct {
	ID         uuid.UUID      `json:"id"`
	FileID     uuid.UUID      `json:"fileId"`
	VariantKey string         `json:"variantKey"`
	StorageKey string         `json:"storageKey"`
	URL        string         `json:"url"`
	Transform  map[string]any `json:"transform"`
	SizeBytes  int64          `json:"sizeBytes"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// UploadTicket is returned to a client that asked to upload a file.
type UploadTicket struct {
	FileID     uuid.UUID `json:"fileId"`
	StorageKey string    `json:"storageKey"`
	UploadURL  string    `json:"uploadUrl"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// OriginalVariantKey names the variant that references the unmodified upload.
const OriginalVariantKey = "original"
