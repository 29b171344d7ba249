package file

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const maxFilenameLength = 200

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// normalizeFilename decomposes accents, drops non-ASCII runes, replaces
// anything outside [a-zA-Z0-9._-] with '_' and keeps the trailing 200
// characters so the extension survives.
func normalizeFilename(name string) string {
	decomposed := norm.NFD.String(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r <= 0x7F {
			b.WriteRune(r)
		}
	}

	out := unsafeFilenameChars.ReplaceAllString(b.String(), "_")
	if len(out) > maxFilenameLength {
		out = out[len(out)-maxFilenameLength:]
	}
	if out == "" {
		return "unnamed"
	}
	return out
}
