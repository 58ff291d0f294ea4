package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, ExitPermissionDenied},
		{"no space", &os.PathError{Op: "write", Path: "/x", Err: syscall.ENOSPC}, ExitInsufficientSpace},
		{"missing", fmt.Errorf("stat source: %w", fs.ErrNotExist), ExitSourceNotFound},
		{"cancelled", ErrCancelled, ExitUserCanceled},
		{"unknown operation", fmt.Errorf("%w: abc", ErrOperationNotFound), ExitOperationNotFound},
		{"other", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeForError(tt.err, ExitGeneralError))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ExitTransferFailed))
	assert.True(t, IsRetryable(ExitPartialTransfer))
	assert.False(t, IsRetryable(ExitPermissionDenied))
	assert.False(t, IsRetryable(ExitInsufficientSpace))
	assert.False(t, IsRetryable(999))
}

func TestExitCodeForOperation(t *testing.T) {
	ok := NewItem("/a", "/b", 1)
	ok.Status = ItemCompleted
	bad := NewItem("/c", "/d", 1)
	bad.Status = ItemFailed
	bad.ErrorMessage = ErrVerificationFailed.Error()

	op := NewOperation(ModeCopy, ok, bad)
	op.Status = OperationCompleted
	assert.Equal(t, ExitChecksumMismatch, ExitCodeForOperation(op))

	bad.ErrorMessage = "write destination: no space left on device"
	assert.Equal(t, ExitPartialTransfer, ExitCodeForOperation(op))

	op.Status = OperationCancelled
	assert.Equal(t, ExitUserCanceled, ExitCodeForOperation(op))
}
