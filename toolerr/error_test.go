package toolerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestNew_DerivesClass(t *testing.T) {
	tests := []struct {
		code string
		want ErrorClass
	}{
		{ErrCodeBinaryNotFound, ErrorClassInfrastructure},
		{ErrCodePermissionDenied, ErrorClassInfrastructure},
		{ErrCodeInvalidInput, ErrorClassSemantic},
		{ErrCodeParseError, ErrorClassSemantic},
		{ErrCodeScopeViolation, ErrorClassSemantic},
		{ErrCodeTimeout, ErrorClassTransient},
		{ErrCodeNetworkError, ErrorClassTransient},
		{ErrCodeRateLimited, ErrorClassTransient},
		{ErrCodeExecutionFailed, ErrorClassPermanent},
		{ErrCodeNotImplemented, ErrorClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New("ping", "probe", tt.code, "msg")
			assert.Equal(t, tt.want, err.Class)
		})
	}
}

func TestError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "message only",
			err:  New("ping", "probe", ErrCodeTimeout, "no reply from host"),
			want: "ping [probe/TIMEOUT]: no reply from host",
		},
		{
			name: "with cause",
			err:  New("ping", "probe", ErrCodeExecutionFailed, "command failed").WithCause(errors.New("exit status 2")),
			want: "ping [probe/EXECUTION_FAILED]: command failed: exit status 2",
		},
		{
			name: "no message",
			err:  New("dns", "resolve", ErrCodeNetworkError, ""),
			want: "dns [resolve/NETWORK_ERROR]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_IsAndUnwrap(t *testing.T) {
	err := New("ping", "probe", ErrCodeTimeout, "slow").WithCause(context.DeadlineExceeded)
	wrapped := fmt.Errorf("stage recon: %w", err)

	assert.True(t, errors.Is(wrapped, context.DeadlineExceeded))
	assert.True(t, errors.Is(wrapped, &Error{Code: ErrCodeTimeout}))
	assert.True(t, errors.Is(wrapped, &Error{Tool: "ping", Code: ErrCodeTimeout}))
	assert.False(t, errors.Is(wrapped, &Error{Tool: "dns", Code: ErrCodeTimeout}))

	var te *Error
	assert.True(t, errors.As(wrapped, &te))
	assert.Equal(t, "ping", te.Tool)
	assert.Equal(t, ErrCodeTimeout, Code(wrapped))
	assert.Equal(t, "", Code(errors.New("plain")))
}

func TestWithDetails_Merges(t *testing.T) {
	err := New("recon", "head", ErrCodeNetworkError, "").
		WithDetails(map[string]any{"host": "a.example.com"}).
		WithDetails(map[string]any{"status": 0})

	assert.Equal(t, map[string]any{"host": "a.example.com", "status": 0}, err.Details)
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, ErrorClass(""), ClassOf(nil))
	assert.Equal(t, ErrorClassTransient, ClassOf(timeoutErr{}))
	assert.Equal(t, ErrorClassPermanent, ClassOf(errors.New("boom")))
	assert.Equal(t, ErrorClassSemantic,
		ClassOf(New("x", "y", ErrCodeTimeout, "").WithClass(ErrorClassSemantic)))

	assert.True(t, IsTransient(fmt.Errorf("wrap: %w", New("x", "y", ErrCodeRateLimited, ""))))
	assert.False(t, IsTransient(New("x", "y", ErrCodeInvalidInput, "")))
}
