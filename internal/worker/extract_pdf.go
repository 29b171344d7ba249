package worker

import (
	"context"
	"image"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/abduss/cloudnest/internal/queue"
)

const defaultPreviewDPI = 150

// PDFExtractor renders page one with pdftoppm.
type PDFExtractor struct {
	PdftoppmPath string
	ScratchDir   string
	Timeout      time.Duration
	DPI          int
}

func (e PDFExtractor) Extract(ctx context.Context, _ queue.Job, source io.Reader) (image.Image, error) {
	dir, input, cleanup, err := spool(e.ScratchDir, "input.pdf", source)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return e.renderFirstPage(ctx, dir, input)
}

// renderFirstPage writes <dir>/page.png from the first page of pdfPath.
func (e PDFExtractor) renderFirstPage(ctx context.Context, dir, pdfPath string) (image.Image, error) {
	dpi := e.DPI
	if dpi <= 0 {
		dpi = defaultPreviewDPI
	}
	prefix := filepath.Join(dir, "page")
	if _, err := (toolRunner{timeout: e.Timeout}).run(ctx, e.PdftoppmPath,
		"-f", "1", "-l", "1",
		"-r", strconv.Itoa(dpi),
		"-png", "-singlefile",
		pdfPath, prefix,
	); err != nil {
		return nil, err
	}
	return decodeToolOutput(prefix + ".png")
}
