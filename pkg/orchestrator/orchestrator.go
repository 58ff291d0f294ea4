// Package orchestrator owns the transfer queue and drives each operation
// through conflict resolution, transfer and verification on a single worker.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/larrydiffey/difcopy/pkg/checksum"
	"github.com/larrydiffey/difcopy/pkg/conflict"
	"github.com/larrydiffey/difcopy/pkg/core"
	"github.com/larrydiffey/difcopy/pkg/history"
	"github.com/larrydiffey/difcopy/pkg/metrics"
	"github.com/larrydiffey/difcopy/pkg/transfer"
	"github.com/larrydiffey/difcopy/pkg/verify"
)

// Options configures a Controller. Zero values select defaults.
type Options struct {
	History   *history.Store
	Asker     core.ConflictAsker
	Metrics   *metrics.Collector
	// ChunkSize overrides the 80 KiB transfer chunk; tests use it to get
	// many chunks out of small fixtures
	ChunkSize int
	Logger    *logrus.Entry
}

// Controller coordinates the transfer process
type Controller struct {
	// mu guards the queue, the current operation and its cancel func.
	// It is never held across I/O.
	mu      sync.Mutex
	queue   []*core.Operation
	current *core.Operation
	cancel  context.CancelFunc

	// runMu serializes execution so one operation runs at a time
	runMu sync.Mutex
	wake  chan struct{}

	gate     *transfer.Gate
	executor *transfer.Executor
	resolver *conflict.Resolver
	verifier *verify.Verifier
	history  *history.Store
	metrics  *metrics.Collector

	listenersMu sync.RWMutex
	sinks       []core.ProgressSink
	notifiers   []core.Notifier

	log *logrus.Entry
}

// New creates a controller
func New(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	store := opts.History
	if store == nil {
		// an in-memory store never fails to open
		store, _ = history.Open("", history.DefaultLimit, log)
	}

	collector := opts.Metrics
	if collector == nil {
		collector = metrics.GlobalCollector
	}

	gate := transfer.NewGate()
	return &Controller{
		wake:     make(chan struct{}, 1),
		gate:     gate,
		executor: transfer.New(gate, log).WithChunkSize(opts.ChunkSize),
		resolver: conflict.New(opts.Asker, log),
		verifier: verify.New(checksum.NewProvider(), log),
		history:  store,
		metrics:  collector,
		log:      log,
	}
}

// WithProgress registers a progress sink
func (c *Controller) WithProgress(sink core.ProgressSink) *Controller {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.sinks = append(c.sinks, sink)
	return c
}

// WithNotifier registers a completion/failure notifier
func (c *Controller) WithNotifier(n core.Notifier) *Controller {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.notifiers = append(c.notifiers, n)
	return c
}

// History returns the history store
func (c *Controller) History() *history.Store {
	return c.history
}

// CurrentSpeed returns the last measured throughput in bytes per second
func (c *Controller) CurrentSpeed() float64 {
	return c.executor.CurrentSpeed()
}

// Current returns the operation being executed, or nil. The returned value
// is live; read item fields only from progress callbacks or after completion.
func (c *Controller) Current() *core.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Run is the background worker. It drains the queue whenever operations are
// enqueued and returns when ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.log.WithField("function", "Run").Info("Transfer worker started")
	defer c.log.WithField("function", "Run").Info("Transfer worker stopped")

	for {
		if err := c.ProcessQueue(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}
	}
}

// ProcessQueue executes queued operations in order until the queue is empty
func (c *Controller) ProcessQueue(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !c.runNext(ctx) {
			return nil
		}
	}
}

func (c *Controller) runNext(ctx context.Context) bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return false
	}
	op := c.queue[0]
	c.queue = c.queue[1:]
	if op.Status.Terminal() {
		c.mu.Unlock()
		return true
	}
	opCtx := c.begin(ctx, op)
	c.mu.Unlock()

	c.run(opCtx, op)
	return true
}

// Execute runs op directly, bypassing the queue, and returns it once finished
func (c *Controller) Execute(ctx context.Context, op *core.Operation) (*core.Operation, error) {
	if op.Status != core.OperationPending {
		return op, fmt.Errorf("operation %s is %s, not pending", op.ID, op.Status)
	}

	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	opCtx := c.begin(ctx, op)
	c.mu.Unlock()

	c.run(opCtx, op)
	return op, nil
}

// begin marks op current. Callers hold c.mu.
func (c *Controller) begin(ctx context.Context, op *core.Operation) context.Context {
	opCtx, cancel := context.WithCancel(ctx)
	c.current = op
	c.cancel = cancel
	op.MarkStarted(time.Now())
	op.Paused = c.gate.Paused()
	c.executor.Begin()
	return opCtx
}

func (c *Controller) run(ctx context.Context, op *core.Operation) {
	log := c.log.WithFields(logrus.Fields{
		"function":     "run",
		"operation_id": op.ID,
		"mode":         op.Mode,
		"items":        len(op.Items),
		"total_bytes":  op.TotalBytes(),
	})
	log.Info("Operation started")

	policy := op.ConflictHandling
	cancelled := false

	for _, item := range op.Items {
		// retried operations keep the outcome of items that did not fail
		if item.Status != core.ItemPending {
			continue
		}
		if cancelled || ctx.Err() != nil {
			cancelled = true
			item.Status = core.ItemCancelled
			continue
		}

		var err error
		policy, err = c.processItem(ctx, op, item, policy)
		if errors.Is(err, core.ErrCancelled) {
			cancelled = true
		}
	}

	status := aggregate(op, cancelled)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	op.MarkFinished(status, time.Now())
	c.current = nil
	c.cancel = nil
	c.mu.Unlock()

	c.executor.Idle()

	log.WithFields(logrus.Fields{
		"status":   op.Status,
		"failed":   len(op.ItemsWithStatus(core.ItemFailed)),
		"duration": op.Duration(),
	}).Info("Operation finished")

	c.finish(op)
}

// aggregate derives the operation status. Mixed outcomes report completed;
// callers inspect item statuses for partial failure.
func aggregate(op *core.Operation, cancelled bool) core.OperationStatus {
	if cancelled {
		return core.OperationCancelled
	}
	if len(op.Items) > 0 && len(op.ItemsWithStatus(core.ItemFailed)) == len(op.Items) {
		return core.OperationFailed
	}
	return core.OperationCompleted
}

// processItem resolves, transfers and verifies one item. It returns the
// sticky conflict policy for the following items, and core.ErrCancelled
// when the operation must stop.
func (c *Controller) processItem(ctx context.Context, op *core.Operation, item *core.Item, policy core.ConflictPolicy) (core.ConflictPolicy, error) {
	item.Status = core.ItemInProgress

	action, policy, err := c.resolver.Resolve(ctx, op.ID, item, policy)
	if err != nil {
		if errors.Is(err, core.ErrCancelled) {
			c.cancelItem(op, item)
			return policy, core.ErrCancelled
		}
		c.failItem(op, item, err)
		return policy, nil
	}

	if action == conflict.ActionSkip {
		item.Skipped = true
		c.completeItem(op, item)
		return policy, nil
	}

	if err := c.executor.Copy(ctx, op, item, c); err != nil {
		if errors.Is(err, core.ErrCancelled) {
			c.cancelItem(op, item)
			return policy, core.ErrCancelled
		}
		c.failItem(op, item, err)
		return policy, nil
	}

	if op.Verification.Enabled() {
		item.Status = core.ItemVerifying
		if err := c.verifier.Verify(ctx, op.Verification, item); err != nil {
			if errors.Is(err, core.ErrCancelled) {
				c.cancelItem(op, item)
				return policy, core.ErrCancelled
			}
			c.failItem(op, item, err)
			return policy, nil
		}
	}

	deleteSource := op.Mode == core.ModeMove ||
		(op.DeleteSourceAfterVerification && item.VerificationPassed != nil && *item.VerificationPassed)
	if deleteSource {
		if err := c.executor.DeleteSource(item); err != nil {
			c.failItem(op, item, err)
			return policy, nil
		}
	}

	c.completeItem(op, item)
	return policy, nil
}

func (c *Controller) completeItem(op *core.Operation, item *core.Item) {
	item.Status = core.ItemCompleted
	c.executor.Progress(c, op, item)
}

func (c *Controller) cancelItem(op *core.Operation, item *core.Item) {
	item.Status = core.ItemCancelled
	item.Paused = false
	c.executor.Progress(c, op, item)
}

func (c *Controller) failItem(op *core.Operation, item *core.Item, err error) {
	item.Fail(err)

	c.log.WithFields(logrus.Fields{
		"function":     "failItem",
		"operation_id": op.ID,
		"item_id":      item.ID,
		"source":       item.SourcePath,
		"destination":  item.DestinationPath,
	}).WithError(err).Warn("Item failed")

	c.executor.Progress(c, op, item)

	c.forEachNotifier(func(n core.Notifier) { n.ItemFailed(op, item) })
}

// finish records a terminal operation in history and metrics and notifies listeners
func (c *Controller) finish(op *core.Operation) {
	if err := c.history.Add(op); err != nil {
		c.log.WithFields(logrus.Fields{
			"function":     "finish",
			"operation_id": op.ID,
		}).WithError(err).Error("Failed to persist history")
	}

	c.metrics.RecordOperation(metrics.SummaryOf(op))

	c.forEachNotifier(func(n core.Notifier) { n.OperationCompleted(op) })
}

// Progress fans an event out to every registered sink
func (c *Controller) Progress(event core.ProgressEvent) {
	c.listenersMu.RLock()
	sinks := c.sinks
	c.listenersMu.RUnlock()

	for _, sink := range sinks {
		c.safely("progress sink", func() { sink.Progress(event) })
	}
}

func (c *Controller) forEachNotifier(fn func(core.Notifier)) {
	c.listenersMu.RLock()
	notifiers := c.notifiers
	c.listenersMu.RUnlock()

	for _, n := range notifiers {
		c.safely("notifier", func() { fn(n) })
	}
}

// safely runs a listener callback; a panicking listener never affects engine state
func (c *Controller) safely(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithFields(logrus.Fields{
				"function": "safely",
				"listener": kind,
				"panic":    r,
			}).Error("Listener panicked")
		}
	}()
	fn()
}

// Pause holds the transfer at the next chunk boundary
func (c *Controller) Pause() {
	c.gate.Pause()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Paused = true
	}
	c.log.WithField("function", "Pause").Info("Transfers paused")
}

// Resume releases a paused transfer
func (c *Controller) Resume() {
	c.gate.Resume()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Paused = false
	}
	c.log.WithField("function", "Resume").Info("Transfers resumed")
}

// Paused reports whether transfers are paused
func (c *Controller) Paused() bool {
	return c.gate.Paused()
}

// Cancel requests cooperative cancellation of the current operation.
// Queued operations are kept and run next.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.log.WithFields(logrus.Fields{
			"function":     "Cancel",
			"operation_id": c.current.ID,
		}).Info("Cancellation requested")
	}
}

// CancelAll cancels the current operation and every queued one. Queued
// operations are marked cancelled without executing and recorded in history.
func (c *Controller) CancelAll() {
	c.mu.Lock()
	drained := c.queue
	c.queue = nil
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	// nothing is left to hold back
	c.gate.Resume()

	now := time.Now()
	for _, op := range drained {
		for _, item := range op.ItemsWithStatus(core.ItemPending) {
			item.Status = core.ItemCancelled
		}
		op.MarkFinished(core.OperationCancelled, now)
		c.finish(op)
	}

	c.log.WithFields(logrus.Fields{
		"function": "CancelAll",
		"drained":  len(drained),
	}).Info("All operations cancelled")
}

// RetryOperation re-enqueues a historical operation with its failed items reset
func (c *Controller) RetryOperation(id string) (*core.Operation, error) {
	op, err := c.history.PrepareRetry(id)
	if err != nil {
		return nil, err
	}
	return c.Enqueue(op), nil
}

// RetryItem resets one failed item of a historical operation. It does not
// enqueue anything; ResubmitOperation runs just the re-armed items.
func (c *Controller) RetryItem(opID, itemID string) error {
	return c.history.ResetItem(opID, itemID)
}

// ResubmitOperation re-enqueues a historical operation as stored, so only
// its pending items run
func (c *Controller) ResubmitOperation(id string) (*core.Operation, error) {
	op, err := c.history.Resubmit(id)
	if err != nil {
		return nil, err
	}
	return c.Enqueue(op), nil
}

// VerifyOperation re-hashes the completed items of a historical operation
// and returns the ones that no longer match
func (c *Controller) VerifyOperation(ctx context.Context, id string, alg core.Algorithm) ([]verify.Failure, error) {
	op, err := c.history.Get(id)
	if err != nil {
		return nil, err
	}
	return c.verifier.VerifyOperation(ctx, op, alg)
}
