// Package apperrors defines the failure taxonomy of the refresh pipeline.
//
// Every error that crosses a component boundary is an *AppError carrying a
// Kind. The refresh orchestrator decides between retry and terminal failure
// with IsTransient alone.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Kind classifies an AppError.
type Kind string

const (
	KindUnauthorized      Kind = "unauthorized"
	KindSourceUnavailable Kind = "source_unavailable"
	KindCacheUnavailable  Kind = "cache_unavailable"
	KindGeoWriteFailed    Kind = "geo_write_failed"
	KindValidationFailed  Kind = "validation_failed"
	KindInternal          Kind = "internal"
)

// AppError wraps an errbuilder error with its kind and HTTP status.
type AppError struct {
	*errbuilder.ErrBuilder
	Kind       Kind `json:"kind"`
	HTTPStatus int  `json:"http_status"`
	// HighLoad marks a cache failure caused by connection saturation.
	HighLoad bool `json:"high_load,omitempty"`
}

func (e *AppError) Error() string {
	if cause := e.ErrBuilder.Unwrap(); cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.ErrBuilder.Msg, cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.ErrBuilder.Msg)
}

func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

func newAppError(builder *errbuilder.ErrBuilder, kind Kind, status int, msg string, cause error) *AppError {
	builder = builder.WithMsg(msg)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return &AppError{ErrBuilder: builder, Kind: kind, HTTPStatus: status}
}

// Unauthorized is returned for a missing or mismatched trigger credential.
func Unauthorized(msg string) *AppError {
	return newAppError(errbuilder.New().WithCode(errbuilder.CodeUnauthenticated), KindUnauthorized, http.StatusUnauthorized, msg, nil)
}

// SourceUnavailable is returned when the system of record cannot be read.
func SourceUnavailable(msg string, cause error) *AppError {
	return newAppError(errbuilder.New().WithCode(errbuilder.CodeUnavailable), KindSourceUnavailable, http.StatusServiceUnavailable, msg, cause)
}

// CacheUnavailable is returned when the cache store cannot be reached or is saturated.
func CacheUnavailable(msg string, cause error) *AppError {
	e := newAppError(errbuilder.New().WithCode(errbuilder.CodeUnavailable), KindCacheUnavailable, http.StatusServiceUnavailable, msg, cause)
	e.HighLoad = IsSaturation(cause)
	return e
}

// GeoWriteFailed describes a single point that could not be indexed.
func GeoWriteFailed(id string, cause error) *AppError {
	return newAppError(errbuilder.New().WithCode(errbuilder.CodeInternal), KindGeoWriteFailed, http.StatusInternalServerError,
		fmt.Sprintf("failed to index event %s", id), cause)
}

// ValidationFailed is returned for bad request input.
func ValidationFailed(msg string, cause error) *AppError {
	return newAppError(errbuilder.New().WithCode(errbuilder.CodeInvalidArgument), KindValidationFailed, http.StatusBadRequest, msg, cause)
}

// Internal wraps anything that does not fit another kind.
func Internal(msg string, cause error) *AppError {
	return newAppError(errbuilder.New().WithCode(errbuilder.CodeInternal), KindInternal, http.StatusInternalServerError, msg, cause)
}

// KindOf returns the kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// IsTransient reports whether a failure is eligible for retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch KindOf(err) {
	case KindSourceUnavailable, KindCacheUnavailable:
		return true
	default:
		return false
	}
}

// IsHighLoad reports whether err is a cache failure caused by saturation.
func IsHighLoad(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.HighLoad
}

// IsSaturation matches the connection-level errors that mean the cache is
// refusing new work rather than being down.
func IsSaturation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "max number of clients reached") ||
		strings.Contains(msg, "connection pool timeout")
}

// HTTPStatus returns the status code for err, 500 for unknown errors.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
