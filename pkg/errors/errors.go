// Package errors defines the error values shared by the upstream clients,
// the sync store and the saga.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinels matched with errors.Is.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrUpstream       = errors.New("upstream request failed")
	ErrStepOrder      = errors.New("saga step out of order")
)

// AppError carries a stable code and, for upstream failures, the HTTP status
// the remote API answered with.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(code string, status int, sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Status:  status,
		Err:     sentinel,
	}
}

// NotFound reports a missing resource, local or remote.
func NotFound(resource, id string) *AppError {
	return newError("NOT_FOUND", http.StatusNotFound, ErrNotFound, "%s with id %s not found", resource, id)
}

// InvalidInput reports a request the upstream rejected as malformed, or bad
// local input such as a date window.
func InvalidInput(message string) *AppError {
	return newError("INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput, "%s", message)
}

// Unauthorized reports rejected credentials or an expired token.
func Unauthorized(message string) *AppError {
	return newError("UNAUTHORIZED", http.StatusUnauthorized, ErrUnauthorized, "%s", message)
}

// Conflict reports a 409 from an upstream.
func Conflict(message string) *AppError {
	return newError("CONFLICT", http.StatusConflict, ErrConflict, "%s", message)
}

// ServiceUnavailable reports a 503 from an upstream.
func ServiceUnavailable(message string) *AppError {
	return newError("SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavail, "%s", message)
}

// Upstream reports any other non-2xx answer from a remote API.
func Upstream(service string, status int, body string) *AppError {
	return newError("UPSTREAM_ERROR", status, ErrUpstream, "%s returned status %d: %s", service, status, body)
}

// StepOrder reports an attempt to move a sync record backwards or sideways.
func StepOrder(orderID, from, to string) *AppError {
	return newError("STEP_ORDER", http.StatusConflict, ErrStepOrder, "order %s cannot move from %s to %s", orderID, from, to)
}

// Kind values. Each is safe to use as a metric label.
const (
	KindNone         = "none"
	KindNotFound     = "not_found"
	KindInvalidInput = "invalid_input"
	KindUnauthorized = "unauthorized"
	KindConflict     = "conflict"
	KindUnavailable  = "unavailable"
	KindUpstream     = "upstream"
	KindStepOrder    = "step_order"
	KindCanceled     = "canceled"
	KindTimeout      = "timeout"
	KindOther        = "other"
)

var kinds = []struct {
	sentinel error
	kind     string
}{
	{ErrNotFound, KindNotFound},
	{ErrInvalidInput, KindInvalidInput},
	{ErrUnauthorized, KindUnauthorized},
	{ErrConflict, KindConflict},
	{ErrServiceUnavail, KindUnavailable},
	{ErrUpstream, KindUpstream},
	{ErrStepOrder, KindStepOrder},
	{context.Canceled, KindCanceled},
	{context.DeadlineExceeded, KindTimeout},
}

// Kind classifies err into one of a fixed set of values.
func Kind(err error) string {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindOther
}
