package worker

import (
	"context"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/abduss/cloudnest/internal/queue"
)

// DocumentExtractor converts office documents to PDF with LibreOffice and
// then renders page one like PDFExtractor.
type DocumentExtractor struct {
	SofficePath string
	ScratchDir  string
	Timeout     time.Duration
	PDF         PDFExtractor
}

var documentExt = map[string]string{
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.ms-excel":                                                  ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"text/plain": ".txt",
}

func (e DocumentExtractor) Extract(ctx context.Context, job queue.Job, source io.Reader) (image.Image, error) {
	ext, ok := documentExt[strings.ToLower(job.MimeType)]
	if !ok {
		ext = sourceExt(job.StorageKey, ".bin")
	}
	dir, input, cleanup, err := spool(e.ScratchDir, "input"+ext, source)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	// A private profile lets several soffice processes run side by side.
	profile := "-env:UserInstallation=file://" + filepath.ToSlash(filepath.Join(dir, "profile"))
	if _, err := (toolRunner{timeout: e.Timeout}).run(ctx, e.SofficePath,
		profile,
		"--headless", "--norestore", "--nolockcheck",
		"--convert-to", "pdf",
		"--outdir", dir,
		input,
	); err != nil {
		return nil, err
	}

	pdfPath := filepath.Join(dir, "input.pdf")
	img, err := e.PDF.renderFirstPage(ctx, dir, pdfPath)
	if err != nil {
		return nil, fmt.Errorf("render converted document: %w", err)
	}
	return img, nil
}
