// Package gatewayerr defines the error taxonomy used across the gateway so
// callers can branch on failure category without parsing message text.
package gatewayerr

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway error by where in the call lifecycle it occurred.
type Kind int

const (
	// KindInitialization covers failures constructing a session, dialing a
	// capability backend, or loading configuration — nothing has started.
	KindInitialization Kind = iota
	// KindProcessing covers failures during an in-flight turn: ASR, LLM,
	// or TTS calls that fail after a session is already running.
	KindProcessing
	// KindProtocol covers malformed or out-of-sequence client frames.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindInitialization:
		return "initialization"
	case KindProcessing:
		return "processing"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and the stage it occurred in.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and a stage label ("asr", "llm", "tts", "handshake", ...).
func New(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Initf builds a KindInitialization error with a formatted message.
func Initf(stage, format string, args ...any) *Error {
	return New(KindInitialization, stage, fmt.Errorf(format, args...))
}

// Processf builds a KindProcessing error with a formatted message.
func Processf(stage, format string, args ...any) *Error {
	return New(KindProcessing, stage, fmt.Errorf(format, args...))
}

// Protocolf builds a KindProtocol error with a formatted message.
func Protocolf(stage, format string, args ...any) *Error {
	return New(KindProtocol, stage, fmt.Errorf(format, args...))
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}
