package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can decide on retry and the HTTP
// layer can decide on a status code without inspecting messages.
type Kind string

const (
	KindInvalidRequest    Kind = "invalid_request"
	KindProviderTransient Kind = "provider_transient"
	KindProviderTerminal  Kind = "provider_terminal"
	KindStoreNotFound     Kind = "store_not_found"
	KindStoreIOFailure    Kind = "store_io_failure"
	KindStoreInterrupted  Kind = "store_interrupted"
	KindTimeout           Kind = "timeout"
	KindRegistry          Kind = "registry"
	KindUnavailable       Kind = "unavailable"
)

// Error carries a classification alongside a human-readable message.
// The classification is assigned where the failure originates and is
// never rewritten on the way up.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by kind so sentinel-style comparisons work:
// errors.Is(err, domain.E(domain.KindTimeout, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// E constructs a classified error.
func E(kind Kind, msg string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(msg, args...)}
}

// Wrap attaches a classification to an underlying error.
func Wrap(kind Kind, err error, msg string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(msg, args...), Err: err}
}

// KindOf extracts the classification, defaulting to provider-terminal
// for unclassified errors so unknown failures are never retried.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProviderTerminal
}

// Retryable reports whether the failure is transient per the retry
// policy: network-class provider errors and interrupted or failed
// store transfers may be retried, everything else propagates.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindProviderTransient, KindStoreIOFailure, KindStoreInterrupted:
		return true
	default:
		return false
	}
}
