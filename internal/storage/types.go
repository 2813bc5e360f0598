package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// CaptureRow is one tick's sample.
type CaptureRow struct {
	RunID   string    `json:"run_id"`
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Text    string    `json:"text"`
	Skipped bool      `json:"skipped"`
	Region  string    `json:"region,omitempty"`
}

// ResultRow is one provider outcome.
type ResultRow struct {
	RunID     string    `json:"run_id"`
	CaptureID string    `json:"capture_id"`
	Provider  string    `json:"provider"`
	Outcome   string    `json:"outcome"`
	Answer    string    `json:"answer,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	At        time.Time `json:"at"`
	TookMS    int64     `json:"took_ms"`
}
