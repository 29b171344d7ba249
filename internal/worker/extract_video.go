package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abduss/cloudnest/internal/queue"
)

// frameOffset is where the representative frame is taken from when the clip is long enough.
const frameOffset = time.Second

// VideoExtractor grabs a single frame with ffmpeg.
type VideoExtractor struct {
	FFmpegPath  string
	FFprobePath string
	ScratchDir  string
	Timeout     time.Duration
}

func (e VideoExtractor) Extract(ctx context.Context, job queue.Job, source io.Reader) (image.Image, error) {
	dir, input, cleanup, err := spool(e.ScratchDir, "input"+sourceExt(job.StorageKey, ".mp4"), source)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	runner := toolRunner{timeout: e.Timeout}

	duration, err := e.probeDuration(ctx, runner, input)
	if err != nil {
		return nil, err
	}
	offset := frameOffset
	if duration < frameOffset {
		offset = 0
	}

	frame := filepath.Join(dir, "frame.png")
	if _, err := runner.run(ctx, e.FFmpegPath,
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", formatSeconds(offset),
		"-i", input,
		"-frames:v", "1",
		frame,
	); err != nil {
		return nil, err
	}
	return decodeToolOutput(frame)
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (e VideoExtractor) probeDuration(ctx context.Context, runner toolRunner, input string) (time.Duration, error) {
	out, err := runner.run(ctx, e.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		input,
	)
	if err != nil {
		return 0, err
	}
	return parseProbeDuration(out)
}

func parseProbeDuration(payload []byte) (time.Duration, error) {
	var parsed probeOutput
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return 0, fmt.Errorf("%w: parse ffprobe output: %v", ErrProcessing, err)
	}
	raw := strings.TrimSpace(parsed.Format.Duration)
	if raw == "" || raw == "N/A" {
		return 0, nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse duration %q: %v", ErrProcessing, raw, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// sourceExt keeps the upload's extension so tools can pick a demuxer or filter.
func sourceExt(storageKey, fallback string) string {
	ext := strings.ToLower(filepath.Ext(storageKey))
	if ext == "" || len(ext) > 8 {
		return fallback
	}
	return ext
}
