package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "[DATABASE_ERROR] connection failed", New(CodeDatabaseError, "connection failed").Error())
	assert.Equal(t, "[DOWNLOAD_ERROR] failed to download trace: no such key",
		Wrap(CodeDownloadError, "failed to download trace", errors.New("no such key")).Error())
}

func TestAppError_IsAndUnwrap(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := Wrap(CodeParseError, "failed to parse trace", cause)

	assert.Same(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, New(CodeParseError, "another message"))
	assert.NotErrorIs(t, err, ErrEmptyFile)

	wrapped := fmt.Errorf("task 7: %w", ErrNoDumps)
	assert.ErrorIs(t, wrapped, ErrNoDumps)
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, CodeUnknown},
		{"plain", errors.New("boom"), CodeUnknown},
		{"coded", ErrEmptyFile, CodeEmptyFile},
		{"wrapped by fmt", fmt.Errorf("outer: %w", Wrap(CodeTimeout, "analysis timed out", context.DeadlineExceeded)), CodeTimeout},
		{"outermost wins", Wrap(CodeAnalysisError, "analysis failed", ErrNoDumps), CodeAnalysisError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorCode(tt.err))
		})
	}
}

func TestHasCode(t *testing.T) {
	err := Wrap(CodeAnalysisError, "analysis failed", ErrNoDumps)
	assert.True(t, HasCode(err, CodeAnalysisError))
	assert.True(t, HasCode(err, CodeNoDumps))
	assert.False(t, HasCode(err, CodeParseError))
	assert.False(t, HasCode(errors.New("plain"), CodeUnknown))
}

func TestStatusInfo(t *testing.T) {
	assert.Equal(t, "", StatusInfo(nil))
	assert.Equal(t, "NO_MEMORY_DUMPS: trace contains no memory dumps", StatusInfo(ErrNoDumps))
	assert.Equal(t, "PARSE_ERROR: failed to parse trace: unexpected EOF",
		StatusInfo(fmt.Errorf("task 1: %w", Wrap(CodeParseError, "failed to parse trace", errors.New("unexpected EOF")))))
	assert.Equal(t, "UNKNOWN_ERROR: disk full", StatusInfo(errors.New("disk full")))
}
