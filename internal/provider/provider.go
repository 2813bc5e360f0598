// Package provider defines the answer-provider boundary and the concrete
// HTTP-backed providers.
package provider

import (
	"context"
	"errors"

	"screenqa/internal/guard"
)

// NoAnswerSentinel is the exact reply a provider gives when the sample holds
// no question. It is never delivered as an answer.
const NoAnswerSentinel = "NO_QUESTION_DETECTED"

// DefaultPrompt instructs the model how to treat OCR text.
const DefaultPrompt = `You receive text captured from a screen with OCR. It may contain recognition errors, merged words and unrelated fragments.
Find any explicit questions or problems in the text and answer each one as briefly and accurately as possible.
For multiple-choice questions name the correct option, keeping its label if one is visible.
For programming problems give a complete solution in a fenced code block.
Number the answers when there is more than one. Do not add greetings or introductions.
If the text contains no clear question, reply with exactly: ` + NoAnswerSentinel

var (
	ErrNotConfigured = errors.New("provider not configured")
	ErrEmptyAnswer   = errors.New("provider returned no text")
	ErrBlocked       = errors.New("prompt blocked by provider")
	ErrUnknownKind   = errors.New("unknown provider kind")
)

// Provider answers one sample. Implementations must honour ctx.
type Provider interface {
	ID() string
	Ask(ctx context.Context, text string) (string, error)
}

// ErrorKind classifies a failed invocation.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindFailure     ErrorKind = "failure"
	KindConfig      ErrorKind = "config"
	KindCancelled   ErrorKind = "cancelled"
	KindCircuitOpen ErrorKind = "circuit_open"
	KindPanic       ErrorKind = "panic"
)

// Classify maps an invocation error to its kind. nil yields "".
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, guard.ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, guard.ErrPanic):
		return KindPanic
	case errors.Is(err, ErrNotConfigured):
		return KindConfig
	default:
		return KindFailure
	}
}
