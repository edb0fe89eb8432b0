// Package apierr defines the service-wide error taxonomy and the single
// JSON error shape returned by every endpoint.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind string

const (
	Unauthenticated   Kind = "unauthenticated"
	Forbidden         Kind = "forbidden"
	InvalidArgument   Kind = "invalid_argument"
	NotFound          Kind = "not_found"
	AlreadyExists     Kind = "already_exists"
	QuotaExceeded     Kind = "quota_exceeded"
	RateLimited       Kind = "rate_limited"
	EngineUnavailable Kind = "engine_unavailable"
	SynthesisFailed   Kind = "synthesis_failed"
	StorageFailure    Kind = "storage_failure"
	InvalidOperation  Kind = "invalid_operation"
	Internal          Kind = "internal"
)

// Error is the tagged error used across all components. Every failure that
// can reach a client resolves to one of these.
type Error struct {
	Kind    Kind
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// Is makes errors.Is match on kind, so sentinel-style comparisons like
// errors.Is(err, apierr.E(apierr.NotFound, "")) work in tests.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// E creates a new tagged error.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), err: err}
}

// KindOf extracts the kind from an error chain, defaulting to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps a kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden, QuotaExceeded:
		return http.StatusForbidden
	case InvalidArgument, InvalidOperation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case AlreadyExists:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case EngineUnavailable, SynthesisFailed, StorageFailure, Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Code      int     `json:"code"`
	Kind      Kind    `json:"kind"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// Write renders err as the structured JSON error response. Unknown errors
// are collapsed to a generic internal message so internals do not leak.
func Write(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	message := "Internal server error"

	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		message = e.Message
	}

	status := HTTPStatus(kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: errorBody{
		Code:      status,
		Kind:      kind,
		Message:   message,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}})
}
