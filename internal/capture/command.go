package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// CommandConfig describes the external screenshot and OCR programs.
//
// Arguments may contain {left} {top} {width} {height} and {out}; the OCR
// command receives the image path as {in}.
type CommandConfig struct {
	RegionCmd []string
	FullCmd   []string
	OCRCmd    []string
	TempDir   string
}

// DefaultCommandConfig returns platform defaults (ImageMagick on Linux,
// screencapture on macOS, tesseract for OCR).
func DefaultCommandConfig() CommandConfig {
	cfg := CommandConfig{OCRCmd: []string{"tesseract", "{in}", "stdout"}}
	switch runtime.GOOS {
	case "darwin":
		cfg.RegionCmd = []string{"screencapture", "-x", "-R{left},{top},{width},{height}", "{out}"}
		cfg.FullCmd = []string{"screencapture", "-x", "-m", "{out}"}
	default:
		cfg.RegionCmd = []string{"import", "-window", "root", "-crop", "{width}x{height}+{left}+{top}", "+repage", "{out}"}
		cfg.FullCmd = []string{"import", "-window", "root", "{out}"}
	}
	return cfg
}

// CommandSampler grabs the screen with one program and extracts text with another.
type CommandSampler struct {
	cfg CommandConfig
}

func NewCommandSampler(cfg CommandConfig) *CommandSampler {
	def := DefaultCommandConfig()
	if len(cfg.RegionCmd) == 0 {
		cfg.RegionCmd = def.RegionCmd
	}
	if len(cfg.FullCmd) == 0 {
		cfg.FullCmd = def.FullCmd
	}
	if len(cfg.OCRCmd) == 0 {
		cfg.OCRCmd = def.OCRCmd
	}
	return &CommandSampler{cfg: cfg}
}

func (s *CommandSampler) Capture(ctx context.Context, region *Region) (string, error) {
	f, err := os.CreateTemp(s.cfg.TempDir, "screenqa-*.png")
	if err != nil {
		return "", fmt.Errorf("temp image: %w", err)
	}
	img := f.Name()
	_ = f.Close()
	defer os.Remove(img)

	vars := map[string]string{"{out}": img}
	tmpl := s.cfg.FullCmd
	if region != nil {
		tmpl = s.cfg.RegionCmd
		vars["{left}"] = strconv.Itoa(region.Left)
		vars["{top}"] = strconv.Itoa(region.Top)
		vars["{width}"] = strconv.Itoa(region.Width)
		vars["{height}"] = strconv.Itoa(region.Height)
	}
	if _, err := run(ctx, expand(tmpl, vars)); err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}

	out, err := run(ctx, expand(s.cfg.OCRCmd, map[string]string{"{in}": img}))
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return CleanText(out), nil
}

func expand(tmpl []string, vars map[string]string) []string {
	out := make([]string, len(tmpl))
	for i, a := range tmpl {
		for k, v := range vars {
			a = strings.ReplaceAll(a, k, v)
		}
		out[i] = a
	}
	return out
}

func run(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrToolMissing, filepath.Base(argv[0]))
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", filepath.Base(argv[0]), err, firstLine(msg))
		}
		return "", fmt.Errorf("%s: %w", filepath.Base(argv[0]), err)
	}
	return stdout.String(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
