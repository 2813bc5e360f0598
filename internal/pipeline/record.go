// Package pipeline runs the capture loop, fans samples out to providers and
// delivers every provider result through the configured sinks.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"screenqa/internal/capture"
	"screenqa/internal/provider"
)

// Outcome is the terminal state of one provider invocation.
type Outcome string

const (
	OutcomeAnswer   Outcome = "answer"
	OutcomeNoResult Outcome = "no_result"
	OutcomeError    Outcome = "error"
)

// ResultRecord correlates a capture, a provider and that provider's outcome.
// Exactly one is produced per invocation.
type ResultRecord struct {
	CaptureID  string             `json:"capture_id"`
	ProviderID string             `json:"provider"`
	Outcome    Outcome            `json:"outcome"`
	Answer     string             `json:"answer,omitempty"`
	Err        string             `json:"error,omitempty"`
	ErrKind    provider.ErrorKind `json:"error_kind,omitempty"`
	Started    time.Time          `json:"started"`
	Took       time.Duration      `json:"took"`
}

// NewRecord builds the record for a finished invocation. A reply equal to
// provider.NoAnswerSentinel becomes OutcomeNoResult; an empty reply is a
// provider.ErrEmptyAnswer failure.
func NewRecord(captureID, providerID string, started time.Time, took time.Duration, answer string, err error) ResultRecord {
	r := ResultRecord{CaptureID: captureID, ProviderID: providerID, Started: started, Took: took}
	answer = strings.TrimSpace(answer)
	if err == nil && answer == "" {
		err = provider.ErrEmptyAnswer
	}
	if err != nil {
		r.Outcome = OutcomeError
		r.ErrKind = provider.Classify(err)
		r.Err = err.Error()
		return r
	}
	if answer == provider.NoAnswerSentinel {
		r.Outcome = OutcomeNoResult
		return r
	}
	r.Outcome = OutcomeAnswer
	r.Answer = answer
	return r
}

// Failed reports whether the record carries a provider error.
func (r ResultRecord) Failed() bool { return r.Outcome == OutcomeError }

// Text renders the record for people: the answer itself, a "no question"
// notice, or the error with its cause.
func (r ResultRecord) Text() string {
	name := DisplayName(r.ProviderID)
	switch r.Outcome {
	case OutcomeAnswer:
		return r.Answer
	case OutcomeNoResult:
		return name + ": No question found in this snippet."
	default:
		if r.ErrKind == "" {
			return fmt.Sprintf("%s Error: %s", name, r.Err)
		}
		return fmt.Sprintf("%s Error (%s): %s", name, r.ErrKind, r.Err)
	}
}

// DisplayName capitalizes a provider id ("gemini" -> "Gemini").
func DisplayName(id string) string {
	r, n := utf8.DecodeRuneInString(id)
	if n == 0 {
		return id
	}
	return string(unicode.ToUpper(r)) + id[n:]
}

// CaptureEntry is one tick's sample, written before any provider runs.
type CaptureEntry struct {
	ID      string          `json:"id"`
	Time    time.Time       `json:"time"`
	Text    string          `json:"text"`
	Skipped bool            `json:"skipped"`
	Region  *capture.Region `json:"region,omitempty"`
}

// Delivery is what a sink receives for one record.
type Delivery struct {
	Record ResultRecord
	// SampleText is the originating sample; HasSample is false once the
	// capture has been evicted from the cache.
	SampleText string
	HasSample  bool
}

// ErrQueueClosed is returned by Push after Close and by Pop once the queue
// is closed and drained.
var ErrQueueClosed = errors.New("result queue closed")
