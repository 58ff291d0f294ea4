package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larrydiffey/difcopy/pkg/core"
)

func TestSummaryOf(t *testing.T) {
	done := core.NewItem("/a", "/x/a", 100)
	done.Status = core.ItemCompleted
	done.BytesTransferred = 100
	skipped := core.NewItem("/b", "/x/b", 50)
	skipped.Status = core.ItemCompleted
	skipped.Skipped = true
	failed := core.NewItem("/c", "/x/c", 10)
	failed.Status = core.ItemFailed

	op := core.NewOperation(core.ModeCopy, done, skipped, failed)
	start := time.Now()
	op.MarkStarted(start)
	op.MarkFinished(core.OperationCompleted, start.Add(2*time.Second))

	s := SummaryOf(op)
	assert.Equal(t, 1, s.ItemsCompleted)
	assert.Equal(t, 1, s.ItemsSkipped)
	assert.Equal(t, 1, s.ItemsFailed)
	assert.Equal(t, int64(100), s.BytesTransferred)
	assert.InDelta(t, 50.0, s.AverageSpeed, 0.001)
}

func TestRecordOperation_Accumulates(t *testing.T) {
	c := New()
	for i := 0; i < 2; i++ {
		c.RecordOperation(&Summary{
			OperationID:      "op",
			Mode:             core.ModeMove,
			Status:           core.OperationCompleted,
			BytesTransferred: 10,
			ItemsCompleted:   1,
		})
	}

	mode := map[string]string{"mode": "move"}
	m := c.Get("bytes_transferred_total", mode)
	require.NotNil(t, m)
	assert.Equal(t, 20.0, m.Value)

	ops := c.Get("operations_total", map[string]string{"status": "completed", "mode": "move"})
	require.NotNil(t, ops)
	assert.Equal(t, 2.0, ops.Value)
}

func TestBuildKey_OrderIndependent(t *testing.T) {
	a := buildKey("m", map[string]string{"x": "1", "y": "2"})
	b := buildKey("m", map[string]string{"y": "2", "x": "1"})
	assert.Equal(t, a, b)
}
