package core

import (
	"context"
	"errors"
)

var (
	// ErrCancelled is returned when cooperative cancellation was observed
	ErrCancelled = errors.New("operation cancelled")

	// ErrVerificationFailed is recorded when source and destination digests differ
	ErrVerificationFailed = errors.New("Verification failed - file hash mismatch")

	// ErrOperationNotFound is returned for unknown operation ids
	ErrOperationNotFound = errors.New("operation not found")

	// ErrItemNotFound is returned for unknown item ids
	ErrItemNotFound = errors.New("item not found")

	// ErrItemNotFailed is returned when retrying an item that did not fail
	ErrItemNotFailed = errors.New("item is not failed")

	// ErrSameFile is recorded when source and destination are the same file
	ErrSameFile = errors.New("source and destination are the same file")
)

// ProgressSink receives progress updates during transfer.
// Implementations must return quickly; they run on the worker.
type ProgressSink interface {
	Progress(event ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink
type ProgressFunc func(event ProgressEvent)

// Progress calls f(event)
func (f ProgressFunc) Progress(event ProgressEvent) { f(event) }

// ConflictAsker is consulted synchronously when the conflict policy is Ask
type ConflictAsker interface {
	Ask(ctx context.Context, req ConflictRequest) (ConflictDecision, error)
}

// ConflictAskerFunc adapts a function to ConflictAsker
type ConflictAskerFunc func(ctx context.Context, req ConflictRequest) (ConflictDecision, error)

// Ask calls f(ctx, req)
func (f ConflictAskerFunc) Ask(ctx context.Context, req ConflictRequest) (ConflictDecision, error) {
	return f(ctx, req)
}

// Notifier receives fire-and-forget lifecycle events
type Notifier interface {
	// OperationCompleted is called once an operation reached a terminal status
	OperationCompleted(op *Operation)

	// ItemFailed is called when an item ends Failed
	ItemFailed(op *Operation, item *Item)
}
