package capture

import (
	"context"
	"fmt"
	"os"
)

// FileSampler re-reads a text file on every tick. It lets the pipeline run
// headless, e.g. fed by another program writing the file.
type FileSampler struct {
	Path string
}

func (s FileSampler) Capture(ctx context.Context, _ *Region) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read sample file: %w", err)
	}
	return CleanText(string(b)), nil
}
