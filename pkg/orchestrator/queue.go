package orchestrator

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/larrydiffey/difcopy/pkg/core"
)

// Enqueue appends op to the queue and wakes the worker
func (c *Controller) Enqueue(op *core.Operation) *core.Operation {
	c.mu.Lock()
	c.queue = append(c.queue, op)
	depth := len(c.queue)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}

	c.log.WithFields(logrus.Fields{
		"function":     "Enqueue",
		"operation_id": op.ID,
		"items":        len(op.Items),
		"queue_depth":  depth,
	}).Info("Operation queued")
	return op
}

// Queue returns a snapshot of the pending queue in execution order
func (c *Controller) Queue() []*core.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.queue)
}

// Remove drops a queued operation. The running operation cannot be removed.
func (c *Controller) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.queue = slices.Delete(c.queue, i, i+1)
	return true
}

// ReorderByPriority sorts the queue by descending priority, keeping
// insertion order among equal priorities
func (c *Controller) ReorderByPriority() {
	c.mu.Lock()
	defer c.mu.Unlock()

	slices.SortStableFunc(c.queue, func(a, b *core.Operation) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
}

// MoveUp swaps a queued operation with its predecessor
func (c *Controller) MoveUp(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i <= 0 {
		return false
	}
	c.queue[i-1], c.queue[i] = c.queue[i], c.queue[i-1]
	return true
}

// MoveDown swaps a queued operation with its successor
func (c *Controller) MoveDown(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 || i == len(c.queue)-1 {
		return false
	}
	c.queue[i+1], c.queue[i] = c.queue[i], c.queue[i+1]
	return true
}

// ClearCompleted drops queued operations that already reached completed
func (c *Controller) ClearCompleted() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.queue)
	c.queue = lo.Reject(c.queue, func(op *core.Operation, _ int) bool {
		return op.Status == core.OperationCompleted
	})
	return before - len(c.queue)
}

func (c *Controller) indexOf(id string) int {
	return slices.IndexFunc(c.queue, func(op *core.Operation) bool { return op.ID == id })
}
