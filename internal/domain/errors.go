package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies domain errors so the transport layer can map them to
// protocol status codes without string-matching messages.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	// ErrInvalidCode - malformed ticker input
	ErrInvalidCode
	// ErrSourceUnavailable - a data tier failed to respond
	ErrSourceUnavailable
	// ErrInsufficientData - a tier answered with less than requested
	ErrInsufficientData
	// ErrNotFound - sector or code absent from the graph
	ErrNotFound
	// ErrSchemaMismatch - persisted graph incompatible with current type set
	ErrSchemaMismatch
	// ErrCacheCorruption - cached payload fails to deserialize
	ErrCacheCorruption
)

// String returns the wire name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidCode:
		return "invalid_code"
	case ErrSourceUnavailable:
		return "source_unavailable"
	case ErrInsufficientData:
		return "insufficient_data"
	case ErrNotFound:
		return "not_found"
	case ErrSchemaMismatch:
		return "schema_mismatch"
	case ErrCacheCorruption:
		return "cache_corruption"
	default:
		return "unknown"
	}
}

// Error is a domain error carrying a kind, a caller-safe message and an
// optional wrapped cause. Internal exception detail stays in the cause and is
// only surfaced through logs, never serialized to clients.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

// E creates a new domain error.
func E(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapE wraps a cause with a domain error kind.
func WrapE(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the domain error kind from an error chain.
// Returns ErrUnknown for non-domain errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrUnknown
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// TierFailure records why a single resolution tier could not serve a request.
type TierFailure struct {
	Tier string // "cache", "primary", "secondary"
	Err  error
}

// TierExhaustedError is returned when every tier of the resolution chain has
// failed. It carries each tier's individual failure, never just the last one.
type TierExhaustedError struct {
	Code     string
	Failures []TierFailure
}

func (e *TierExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Tier, f.Err))
	}
	return fmt.Sprintf("all tiers failed for %s [%s]", e.Code, strings.Join(parts, "; "))
}

// Unwrap exposes the individual tier errors for errors.Is / errors.As.
func (e *TierExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
