package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
		message  string
	}{
		{"not found", NotFound("product", "42"), "NOT_FOUND", http.StatusNotFound, ErrNotFound, "product with id 42 not found"},
		{"invalid input", InvalidInput("from after to"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput, "from after to"},
		{"unauthorized", Unauthorized("syrve: token expired"), "UNAUTHORIZED", http.StatusUnauthorized, ErrUnauthorized, "syrve: token expired"},
		{"conflict", Conflict("syrve: order exists"), "CONFLICT", http.StatusConflict, ErrConflict, "syrve: order exists"},
		{"unavailable", ServiceUnavailable("smartkasa: maintenance"), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavail, "smartkasa: maintenance"},
		{"upstream", Upstream("syrve", 502, "bad gateway"), "UPSTREAM_ERROR", 502, ErrUpstream, "syrve returned status 502: bad gateway"},
		{"step order", StepOrder("ord-1", "close_order", "add_payment"), "STEP_ORDER", http.StatusConflict, ErrStepOrder, "order ord-1 cannot move from close_order to add_payment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.message, tt.err.Message)
			assert.ErrorIs(t, tt.err, tt.sentinel)
		})
	}
}

func TestConstructors_MessageNotFormatted(t *testing.T) {
	err := InvalidInput("discount 100% exceeds sum")
	assert.Equal(t, "discount 100% exceeds sum", err.Message)
}

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: sync record with id o-1 not found: resource not found",
		NotFound("sync record", "o-1").Error())

	bare := &AppError{Code: "X", Message: "msg"}
	assert.Equal(t, "X: msg", bare.Error())
	assert.Nil(t, bare.Unwrap())
}

func TestAppError_As(t *testing.T) {
	wrapped := fmt.Errorf("create order: %w", Upstream("syrve", 500, "boom"))

	var appErr *AppError
	require.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, 500, appErr.Status)
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, KindNone},
		{NotFound("product", "1"), KindNotFound},
		{InvalidInput("x"), KindInvalidInput},
		{fmt.Errorf("auth: %w", Unauthorized("x")), KindUnauthorized},
		{Conflict("x"), KindConflict},
		{ServiceUnavailable("x"), KindUnavailable},
		{Upstream("syrve", 500, "x"), KindUpstream},
		{StepOrder("o", "a", "b"), KindStepOrder},
		{fmt.Errorf("add payment: %w", context.Canceled), KindCanceled},
		{context.DeadlineExceeded, KindTimeout},
		{errors.New("disk full"), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestKind_UpstreamCodeDoesNotLeak(t *testing.T) {
	err := Upstream("syrve", 500, "x")
	err.Code = "ORDER_LOCKED"
	assert.Equal(t, KindUpstream, Kind(err))
}
