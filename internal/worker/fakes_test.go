package worker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/abduss/cloudnest/internal/callback"
)

// pngBytes renders a w x h gradient as PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

type fakeReporter struct {
	mu    sync.Mutex
	calls []callback.UpdateRequest
	err   error
}

func (r *fakeReporter) Report(_ context.Context, req callback.UpdateRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	return r.err
}

func (r *fakeReporter) reports() []callback.UpdateRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]callback.UpdateRequest(nil), r.calls...)
}
