package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"screenqa/pkg/logx"
)

// fileStore appends history as JSON Lines.
//
// Files:
//   - <prefix>.captures.jsonl
//   - <prefix>.results.jsonl
//
// Prune rewrites each file through a temp file and rename.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	capturesPath string
	resultsPath  string
	captures     *os.File
	results      *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		capturesPath: prefix + ".captures.jsonl",
		resultsPath:  prefix + ".results.jsonl",
	}
	var err error
	if s.captures, err = openAppend(s.capturesPath); err != nil {
		return nil, err
	}
	if s.results, err = openAppend(s.resultsPath); err != nil {
		_ = s.captures.Close()
		return nil, err
	}
	return s, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.captures != nil {
		err1 = s.captures.Close()
		s.captures = nil
	}
	if s.results != nil {
		err2 = s.results.Close()
		s.results = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendCapture(ctx context.Context, c CaptureRow) error {
	_ = ctx
	if c.At.IsZero() {
		c.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.captures == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.captures).Encode(c)
}

func (s *fileStore) AppendResult(ctx context.Context, r ResultRow) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.results).Encode(r)
}

func (s *fileStore) Prune(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.captures == nil || s.results == nil {
		return 0, ErrClosed
	}

	n1, f1, err := rewriteKeeping(ctx, s.capturesPath, s.captures, before)
	if err != nil {
		return 0, err
	}
	s.captures = f1
	n2, f2, err := rewriteKeeping(ctx, s.resultsPath, s.results, before)
	if err != nil {
		return n1, err
	}
	s.results = f2
	if n1+n2 > 0 {
		s.log.Debug("history pruned", logx.Int("captures", n1), logx.Int("results", n2))
	}
	return n1 + n2, nil
}

// rewriteKeeping copies lines whose "at" is not before the cutoff into a
// temp file, swaps it in and reopens the append handle. Lines that fail to
// parse are kept.
func rewriteKeeping(ctx context.Context, path string, cur *os.File, before time.Time) (int, *os.File, error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, cur, err
	}
	defer in.Close()

	tmp := path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, cur, err
	}
	w := bufio.NewWriter(out)

	removed := 0
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			_ = out.Close()
			_ = os.Remove(tmp)
			return 0, cur, err
		}
		line := sc.Bytes()
		var row struct {
			At time.Time `json:"at"`
		}
		if json.Unmarshal(line, &row) == nil && !row.At.IsZero() && row.At.Before(before) {
			removed++
			continue
		}
		_, _ = w.Write(line)
		_ = w.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return 0, cur, err
	}
	if err := w.Flush(); err != nil {
		_ = out.Close()
		return 0, cur, err
	}
	if err := out.Close(); err != nil {
		return 0, cur, err
	}
	if removed == 0 {
		_ = os.Remove(tmp)
		return 0, cur, nil
	}

	_ = cur.Close()
	if err := os.Rename(tmp, path); err != nil {
		f, oerr := openAppend(path)
		if oerr != nil {
			return 0, nil, errors.Join(err, oerr)
		}
		return 0, f, err
	}
	f, err := openAppend(path)
	if err != nil {
		return removed, nil, err
	}
	return removed, f, nil
}
