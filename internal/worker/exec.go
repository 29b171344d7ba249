package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const maxToolStderr = 2048

// toolRunner runs external binaries under a per-call deadline.
type toolRunner struct {
	timeout time.Duration
}

// run executes path with args. A missing binary, a non-zero exit and a
// deadline all come back wrapped in ErrProcessing.
func (r toolRunner) run(ctx context.Context, path string, args ...string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: tool path is empty", ErrProcessing)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s timed out after %s", ErrProcessing, filepath.Base(path), r.timeout)
		}
		return nil, fmt.Errorf("%w: %s cancelled: %v", ErrProcessing, filepath.Base(path), ctxErr)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxToolStderr {
			msg = msg[:maxToolStderr]
		}
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrProcessing, filepath.Base(path), err, msg)
	}
	return stdout.Bytes(), nil
}

// spool copies source into a fresh scratch directory under base and returns
// the directory, the written file path and a cleanup func.
func spool(base, name string, source io.Reader) (string, string, func(), error) {
	dir, err := os.MkdirTemp(base, "cloudnest-job-")
	if err != nil {
		return "", "", func() {}, fmt.Errorf("create scratch dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	target := filepath.Join(dir, name)
	f, err := os.Create(target)
	if err != nil {
		cleanup()
		return "", "", func() {}, fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := io.Copy(f, source); err != nil {
		_ = f.Close()
		cleanup()
		return "", "", func() {}, fmt.Errorf("spool source: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", "", func() {}, fmt.Errorf("close scratch file: %w", err)
	}
	return dir, target, cleanup, nil
}

// decodeToolOutput loads and decodes an image written by an external tool.
func decodeToolOutput(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read tool output: %v", ErrProcessing, err)
	}
	return decodeRaster(data)
}
