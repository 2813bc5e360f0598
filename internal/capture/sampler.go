package capture

import (
	"context"
	"errors"
	"strings"
)

// ErrorMarker prefixes a sample that stands for a failed capture, so that the
// capture log shows why a tick was skipped.
const ErrorMarker = "OCR Error:"

// EmptySample is logged for ticks that produced no text.
const EmptySample = "Empty Capture"

var (
	ErrToolMissing = errors.New("capture tool not found")
	ErrEmptyOutput = errors.New("capture produced no text")
)

// Sampler produces the text currently visible in region.
// region == nil means the full primary display.
type Sampler interface {
	Capture(ctx context.Context, region *Region) (string, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context, region *Region) (string, error)

func (f SamplerFunc) Capture(ctx context.Context, region *Region) (string, error) {
	return f(ctx, region)
}

// MarkError renders err as an error sample.
func MarkError(err error) string {
	if err == nil {
		return ErrorMarker + " unknown"
	}
	return ErrorMarker + " " + err.Error()
}

// IsErrorSample reports whether s is a capture failure rather than real text.
func IsErrorSample(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), ErrorMarker)
}

// CleanText trims OCR output and drops whitespace-only lines, keeping the
// remaining line breaks.
func CleanText(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		kept = append(kept, strings.TrimRight(ln, " \t"))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
