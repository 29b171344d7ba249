// Package worker turns media jobs into variants and reports the outcome back
// to the upload coordinator.
package worker

import (
	"context"
	"image"
	"io"

	"github.com/abduss/cloudnest/internal/queue"
)

// Extractor produces the raster image variants are generated from.
type Extractor interface {
	Extract(ctx context.Context, job queue.Job, source io.Reader) (image.Image, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, job queue.Job, source io.Reader) (image.Image, error)

func (f ExtractorFunc) Extract(ctx context.Context, job queue.Job, source io.Reader) (image.Image, error) {
	return f(ctx, job, source)
}
