package file

import (
	"strings"

	"github.com/abduss/cloudnest/internal/queue"
)

// Category groups MIME types by the processing they need.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryPDF      Category = "pdf"
	CategoryDocument Category = "document"
	CategoryOther    Category = "other"
)

var allowedTypes = map[string]struct{}{
	"image/jpeg":    {},
	"image/png":     {},
	"image/webp":    {},
	"image/gif":     {},
	"image/svg+xml": {},

	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.ms-powerpoint":                                             {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/vnd.ms-excel":                                                  {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"text/plain":                   {},
	"application/zip":              {},
	"application/x-zip-compressed": {},

	"audio/mpeg": {},
	"audio/wav":  {},
	"audio/ogg":  {},
	"audio/aac":  {},
	"audio/flac": {},
	"audio/webm": {},

	"video/mp4":        {},
	"video/x-msvideo":  {},
	"video/x-matroska": {},
	"video/webm":       {},
	"video/quicktime":  {},
	"video/mpeg":       {},
}

var documentTypes = map[string]struct{}{
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.ms-excel":                                                  {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.ms-powerpoint":                                             {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"text/plain": {},
}

// canonicalMIME lowercases and drops parameters such as charset.
func canonicalMIME(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// IsAllowed reports whether uploads of contentType are accepted.
func IsAllowed(contentType string) bool {
	_, ok := allowedTypes[canonicalMIME(contentType)]
	return ok
}

// Classify maps a MIME type onto its processing category.
func Classify(contentType string) Category {
	mt := canonicalMIME(contentType)
	switch {
	case mt == "image/svg+xml":
		return CategoryOther
	case strings.HasPrefix(mt, "image/"):
		return CategoryImage
	case strings.HasPrefix(mt, "video/"):
		return CategoryVideo
	case mt == "application/pdf":
		return CategoryPDF
	}
	if _, ok := documentTypes[mt]; ok {
		return CategoryDocument
	}
	return CategoryOther
}

// JobType returns the queue job type for c. ok is false for CategoryOther.
func (c Category) JobType() (queue.JobType, bool) {
	switch c {
	case CategoryImage:
		return queue.JobImage, true
	case CategoryVideo:
		return queue.JobVideo, true
	case CategoryPDF:
		return queue.JobPDF, true
	case CategoryDocument:
		return queue.JobDocument, true
	default:
		return "", false
	}
}
