package worker

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/abduss/cloudnest/internal/queue"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	// WebP decoding for image.Decode.
	_ "golang.org/x/image/webp"
)

var rasterTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
	"image/bmp":  {},
	"image/tiff": {},
}

// ImageExtractor decodes raster uploads. The declared MIME type is not
// trusted; the bytes are sniffed first.
type ImageExtractor struct{}

func (ImageExtractor) Extract(_ context.Context, _ queue.Job, source io.Reader) (image.Image, error) {
	data, err := io.ReadAll(source)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return decodeRaster(data)
}

func decodeRaster(data []byte) (image.Image, error) {
	detected := mimetype.Detect(data)
	if _, ok := rasterTypes[detected.String()]; !ok {
		return nil, fmt.Errorf("%w: %w: detected %s", ErrProcessing, ErrUnsupportedImage, detected.String())
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrProcessing, detected.String(), err)
	}
	return img, nil
}
