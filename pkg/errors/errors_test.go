package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			err:      New(CodeOutOfMemory, "slab reservation failed"),
			expected: "[OUT_OF_MEMORY] slab reservation failed",
		},
		{
			name:     "with underlying error",
			err:      Wrap(CodeOutOfMemory, "mmap failed", errors.New("cannot allocate memory")),
			expected: "[OUT_OF_MEMORY] mmap failed: cannot allocate memory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeDatabaseError, "run history insert failed", underlying)

	unwrapped := err.Unwrap()
	assert.Equal(t, underlying, unwrapped)
}

func TestAppError_Is(t *testing.T) {
	err1 := New(CodeInvalidArgument, "error 1")
	err2 := New(CodeInvalidArgument, "error 2")
	err3 := New(CodeNotFound, "error 3")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestIsOutOfMemory(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "out of memory error",
			err:      ErrOutOfMemory,
			expected: true,
		},
		{
			name:     "wrapped out of memory error",
			err:      Wrap(CodeOutOfMemory, "reserve", errors.New("mmap: ENOMEM")),
			expected: true,
		},
		{
			name:     "other error",
			err:      ErrInvalidArgument,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsOutOfMemory(tt.err))
		})
	}
}

func TestIsInvalidArgument(t *testing.T) {
	assert.True(t, IsInvalidArgument(ErrInvalidArgument))
	assert.False(t, IsInvalidArgument(ErrOutOfMemory))
}

func TestIsPreconditionViolation(t *testing.T) {
	assert.True(t, IsPreconditionViolation(ErrPreconditionViolation))
	assert.False(t, IsPreconditionViolation(ErrNotFound))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound))
	assert.False(t, IsNotFound(ErrPreconditionViolation))
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeNotFound, "workload type not present"),
			expected: CodeNotFound,
		},
		{
			name:     "wrapped app error",
			err:      Wrap(CodeUploadError, "report upload", errors.New("inner")),
			expected: CodeUploadError,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: CodeUnknown,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorCode(tt.err))
		})
	}
}

func TestGetErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeInvalidArgument, "alignment must be a power of two"),
			expected: "alignment must be a power of two",
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: "standard error",
		},
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorMessage(tt.err))
		})
	}
}
