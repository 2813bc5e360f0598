package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"screenqa/pkg/logx"
)

// Store is the history API used by the history sink and maintenance jobs.
type Store interface {
	AppendCapture(ctx context.Context, c CaptureRow) error
	AppendResult(ctx context.Context, r ResultRow) error
	// Prune deletes rows older than before and reports how many went.
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
