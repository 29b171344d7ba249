package worker

import (
	"bytes"
	"context"
	"image"
	"io"
	"testing"

	"github.com/abduss/cloudnest/internal/objectstore/objectstoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedBounds(t *testing.T, store *objectstoretest.Store, key string) image.Rectangle {
	t.Helper()
	rc, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img.Bounds()
}

func TestGenerateProducesSizesThenOriginal(t *testing.T) {
	store := objectstoretest.NewStore()
	source := pngBytes(t, 1000, 500)
	store.Seed("u1/f1_photo.jpg", source, "image/jpeg")

	img, err := decodeRaster(source)
	require.NoError(t, err)

	variants, err := NewGenerator(store).Generate(context.Background(), "u1/f1_photo.jpg", img)
	require.NoError(t, err)
	require.Len(t, variants, 3)

	assert.Equal(t, "thumbnail", variants[0].VariantKey)
	assert.Equal(t, "variants/thumbnail/u1/f1_photo.png", variants[0].StorageKey)
	assert.Equal(t, map[string]any{"w": 200}, variants[0].Transform)
	assert.Equal(t, "http://objects.test/cloudnest/variants/thumbnail/u1/f1_photo.png", variants[0].URL)
	assert.Equal(t, 200, storedBounds(t, store, variants[0].StorageKey).Dx())
	assert.Equal(t, 100, storedBounds(t, store, variants[0].StorageKey).Dy())

	assert.Equal(t, "medium", variants[1].VariantKey)
	assert.Equal(t, 800, storedBounds(t, store, variants[1].StorageKey).Dx())

	original := variants[2]
	assert.Equal(t, OriginalVariantKey, original.VariantKey)
	assert.Equal(t, "u1/f1_photo.jpg", original.StorageKey)
	assert.Equal(t, int64(len(source)), original.SizeBytes)
	assert.Empty(t, original.Transform)
	assert.NotNil(t, original.Transform)
}

func TestGenerateNeverUpscales(t *testing.T) {
	store := objectstoretest.NewStore()
	source := pngBytes(t, 120, 60)
	store.Seed("k.png", source, "image/png")
	img, err := decodeRaster(source)
	require.NoError(t, err)

	variants, err := NewGenerator(store).Generate(context.Background(), "k.png", img)
	require.NoError(t, err)

	for _, v := range variants[:2] {
		b := storedBounds(t, store, v.StorageKey)
		assert.Equal(t, 120, b.Dx(), v.VariantKey)
		assert.Equal(t, 60, b.Dy(), v.VariantKey)
	}
}

func TestGenerateAbortsOnUploadError(t *testing.T) {
	store := objectstoretest.NewStore()
	store.FailPut = objectstoretest.ErrInjected
	img, err := decodeRaster(pngBytes(t, 10, 10))
	require.NoError(t, err)

	_, err = NewGenerator(store).Generate(context.Background(), "k.png", img)
	require.ErrorIs(t, err, objectstoretest.ErrInjected)
}

func TestVariantKeyReplacesExtension(t *testing.T) {
	cases := map[string]string{
		"u/id_clip.mp4":    "variants/thumbnail/u/id_clip.png",
		"u/id_noext":       "variants/thumbnail/u/id_noext.png",
		"u/id_a.b.tar.pdf": "variants/thumbnail/u/id_a.b.tar.png",
	}
	for in, want := range cases {
		assert.Equal(t, want, variantKey("thumbnail", in), in)
	}
}
