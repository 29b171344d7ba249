package worker

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"path"
	"strings"

	"github.com/abduss/cloudnest/internal/callback"
	"github.com/abduss/cloudnest/internal/objectstore"
	"github.com/disintegration/imaging"
)

// OriginalVariantKey names the variant that points at the uploaded blob.
const OriginalVariantKey = "original"

// Size is one entry of the variant size table.
type Size struct {
	Key   string
	Width int
}

// DefaultSizes is the fixed size table, applied in order.
var DefaultSizes = []Size{
	{Key: "thumbnail", Width: 200},
	{Key: "medium", Width: 800},
}

type blobStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Stat(ctx context.Context, key string) (objectstore.ObjectInfo, error)
	URL(key string) string
}

// Generator scales a decoded image into every configured size and uploads the results.
type Generator struct {
	store blobStore
	sizes []Size
}

// NewGenerator returns a Generator using DefaultSizes.
func NewGenerator(store blobStore) *Generator {
	return &Generator{store: store, sizes: DefaultSizes}
}

// Generate uploads one PNG per size plus the original entry. The first error aborts.
func (g *Generator) Generate(ctx context.Context, storageKey string, img image.Image) ([]callback.Variant, error) {
	variants := make([]callback.Variant, 0, len(g.sizes)+1)

	for _, size := range g.sizes {
		scaled := scale(img, size.Width)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, scaled, imaging.PNG); err != nil {
			return nil, fmt.Errorf("%w: encode %s: %v", ErrProcessing, size.Key, err)
		}

		key := variantKey(size.Key, storageKey)
		length := int64(buf.Len())
		if err := g.store.Put(ctx, key, &buf, length, "image/png"); err != nil {
			return nil, fmt.Errorf("upload %s: %w", size.Key, err)
		}

		variants = append(variants, callback.Variant{
			VariantKey: size.Key,
			StorageKey: key,
			URL:        g.store.URL(key),
			Transform:  map[string]any{"w": size.Width},
			SizeBytes:  length,
		})
	}

	info, err := g.store.Stat(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("stat original: %w", err)
	}
	variants = append(variants, callback.Variant{
		VariantKey: OriginalVariantKey,
		StorageKey: storageKey,
		URL:        g.store.URL(storageKey),
		Transform:  map[string]any{},
		SizeBytes:  info.Size,
	})

	return variants, nil
}

// scale fits img into a width x width box. Smaller images are returned as is.
func scale(img image.Image, width int) image.Image {
	b := img.Bounds()
	if b.Dx() <= width && b.Dy() <= width {
		return img
	}
	return imaging.Fit(img, width, width, imaging.Lanczos)
}

// variantKey renders variants/<size>/<storageKey with a .png extension>.
func variantKey(size, storageKey string) string {
	base := strings.TrimSuffix(storageKey, path.Ext(storageKey))
	return "variants/" + size + "/" + base + ".png"
}
