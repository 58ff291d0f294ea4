package core

import (
	"errors"
	"io/fs"
	"syscall"
)

// Exit codes for semantic error handling
// These codes help scripts tell partial failures from hard errors
const (
	// ExitSuccess indicates successful completion
	ExitSuccess = 0

	// ExitGeneralError indicates a general error
	ExitGeneralError = 1

	// ExitConfigError indicates configuration error (invalid config, missing fields)
	ExitConfigError = 10

	// ExitSourceNotFound indicates source path doesn't exist
	ExitSourceNotFound = 20

	// ExitDestNotWritable indicates destination is not writable
	ExitDestNotWritable = 21

	// ExitPermissionDenied indicates permission denied error
	ExitPermissionDenied = 22

	// ExitInsufficientSpace indicates insufficient disk space at destination
	ExitInsufficientSpace = 23

	// ExitTransferFailed indicates transfer failed (retryable)
	ExitTransferFailed = 30

	// ExitChecksumMismatch indicates checksum/integrity check failed
	ExitChecksumMismatch = 31

	// ExitPartialTransfer indicates partial transfer (some files failed)
	ExitPartialTransfer = 32

	// ExitOperationNotFound indicates the operation id is unknown to history
	ExitOperationNotFound = 40

	// ExitUserCanceled indicates user canceled the operation
	ExitUserCanceled = 50
)

// ErrorCategory classifies errors for callers deciding on a retry
type ErrorCategory string

const (
	// CategoryRetryable errors can be retried
	CategoryRetryable ErrorCategory = "retryable"

	// CategoryFatal errors cannot be retried without fixing the issue
	CategoryFatal ErrorCategory = "fatal"

	// CategoryConfiguration errors require config changes
	CategoryConfiguration ErrorCategory = "configuration"

	// CategoryPermission errors require access changes
	CategoryPermission ErrorCategory = "permission"

	// CategoryResource errors indicate resource constraints
	CategoryResource ErrorCategory = "resource"

	// CategoryUser errors caused by user action/cancellation
	CategoryUser ErrorCategory = "user"
)

// ExitCodeInfo provides metadata about exit codes
type ExitCodeInfo struct {
	Code        int
	Category    ErrorCategory
	Description string
	Retryable   bool
	Suggestion  string
}

// ExitCodeRegistry maps exit codes to their metadata
var ExitCodeRegistry = map[int]ExitCodeInfo{
	ExitSuccess: {
		Code:        ExitSuccess,
		Category:    CategoryUser,
		Description: "Operation completed successfully",
		Retryable:   false,
		Suggestion:  "",
	},
	ExitConfigError: {
		Code:        ExitConfigError,
		Category:    CategoryConfiguration,
		Description: "Configuration error",
		Retryable:   false,
		Suggestion:  "Check configuration file syntax and required fields",
	},
	ExitSourceNotFound: {
		Code:        ExitSourceNotFound,
		Category:    CategoryFatal,
		Description: "Source path not found",
		Retryable:   false,
		Suggestion:  "Verify source path exists and is accessible",
	},
	ExitDestNotWritable: {
		Code:        ExitDestNotWritable,
		Category:    CategoryFatal,
		Description: "Destination not writable",
		Retryable:   false,
		Suggestion:  "Check destination permissions and path validity",
	},
	ExitPermissionDenied: {
		Code:        ExitPermissionDenied,
		Category:    CategoryPermission,
		Description: "Permission denied",
		Retryable:   false,
		Suggestion:  "Verify user has required permissions",
	},
	ExitInsufficientSpace: {
		Code:        ExitInsufficientSpace,
		Category:    CategoryResource,
		Description: "Insufficient disk space",
		Retryable:   false,
		Suggestion:  "Free up space at destination or use different location",
	},
	ExitTransferFailed: {
		Code:        ExitTransferFailed,
		Category:    CategoryRetryable,
		Description: "Transfer failed",
		Retryable:   true,
		Suggestion:  "Inspect the failed items and run retry on the operation",
	},
	ExitChecksumMismatch: {
		Code:        ExitChecksumMismatch,
		Category:    CategoryFatal,
		Description: "Checksum verification failed",
		Retryable:   true,
		Suggestion:  "Destination differs from source, retry the failed items",
	},
	ExitPartialTransfer: {
		Code:        ExitPartialTransfer,
		Category:    CategoryRetryable,
		Description: "Partial transfer (some files failed)",
		Retryable:   true,
		Suggestion:  "Review failed files and retry",
	},
	ExitOperationNotFound: {
		Code:        ExitOperationNotFound,
		Category:    CategoryUser,
		Description: "Operation not found in history",
		Retryable:   false,
		Suggestion:  "List known operations with 'difcopy history list'",
	},
	ExitUserCanceled: {
		Code:        ExitUserCanceled,
		Category:    CategoryUser,
		Description: "Operation canceled by user",
		Retryable:   false,
		Suggestion:  "",
	},
}

// GetExitCodeInfo retrieves metadata for an exit code
func GetExitCodeInfo(code int) ExitCodeInfo {
	if info, exists := ExitCodeRegistry[code]; exists {
		return info
	}
	return ExitCodeInfo{
		Code:        code,
		Category:    CategoryFatal,
		Description: "Unknown error",
		Retryable:   false,
		Suggestion:  "Check logs for details",
	}
}

// IsRetryable checks if an exit code represents a retryable error
func IsRetryable(code int) bool {
	return GetExitCodeInfo(code).Retryable
}

// ExitCodeForError maps err to the exit code of its cause, or fallback when
// the cause has no dedicated code
func ExitCodeForError(err error, fallback int) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrCancelled):
		return ExitUserCanceled
	case errors.Is(err, fs.ErrPermission):
		return ExitPermissionDenied
	case errors.Is(err, syscall.ENOSPC):
		return ExitInsufficientSpace
	case errors.Is(err, fs.ErrNotExist):
		return ExitSourceNotFound
	case errors.Is(err, ErrOperationNotFound), errors.Is(err, ErrItemNotFound):
		return ExitOperationNotFound
	}
	return fallback
}

// ExitCodeForOperation maps the outcome of a finished operation to an exit code
func ExitCodeForOperation(op *Operation) int {
	switch op.Status {
	case OperationCancelled:
		return ExitUserCanceled
	case OperationFailed:
		return ExitTransferFailed
	}

	failed := op.ItemsWithStatus(ItemFailed)
	if len(failed) == 0 {
		return ExitSuccess
	}
	for _, item := range failed {
		if item.ErrorMessage != ErrVerificationFailed.Error() {
			return ExitPartialTransfer
		}
	}
	return ExitChecksumMismatch
}
