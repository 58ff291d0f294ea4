package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/larrydiffey/difcopy/pkg/core"
)

// Collector collects transfer metrics
type Collector struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
}

// Metric represents a single metric
type Metric struct {
	Name      string
	Value     float64
	Timestamp time.Time
	Labels    map[string]string
}

// Summary contains aggregated metrics for one finished operation
type Summary struct {
	OperationID      string
	Mode             core.TransferMode
	Status           core.OperationStatus
	BytesTransferred int64
	ItemsCompleted   int
	ItemsSkipped     int
	ItemsFailed      int
	ItemsCancelled   int
	Duration         time.Duration
	AverageSpeed     float64
	Timestamp        time.Time
}

// SummaryOf derives a summary from a finished operation
func SummaryOf(op *core.Operation) *Summary {
	s := &Summary{
		OperationID:      op.ID,
		Mode:             op.Mode,
		Status:           op.Status,
		BytesTransferred: op.BytesTransferred(),
		Duration:         op.Duration(),
		Timestamp:        time.Now(),
	}

	for _, item := range op.Items {
		switch item.Status {
		case core.ItemCompleted:
			if item.Skipped {
				s.ItemsSkipped++
			} else {
				s.ItemsCompleted++
			}
		case core.ItemFailed:
			s.ItemsFailed++
		case core.ItemCancelled:
			s.ItemsCancelled++
		}
	}

	if secs := s.Duration.Seconds(); secs > 0 {
		s.AverageSpeed = float64(s.BytesTransferred) / secs
	}
	return s
}

// New creates a new metrics collector
func New() *Collector {
	return &Collector{
		metrics: make(map[string]*Metric),
	}
}

// Record records a metric value
func (c *Collector) Record(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics[buildKey(name, labels)] = &Metric{
		Name:      name,
		Value:     value,
		Timestamp: time.Now(),
		Labels:    labels,
	}
}

// Add adds delta to a counter metric
func (c *Collector) Add(name string, delta float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := buildKey(name, labels)
	if m, exists := c.metrics[key]; exists {
		m.Value += delta
		m.Timestamp = time.Now()
		return
	}
	c.metrics[key] = &Metric{
		Name:      name,
		Value:     delta,
		Timestamp: time.Now(),
		Labels:    labels,
	}
}

// Increment increments a counter metric
func (c *Collector) Increment(name string, labels map[string]string) {
	c.Add(name, 1, labels)
}

// Get retrieves a metric by name and labels
func (c *Collector) Get(name string, labels map[string]string) *Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if m, exists := c.metrics[buildKey(name, labels)]; exists {
		metricCopy := *m
		return &metricCopy
	}
	return nil
}

// GetAll returns all metrics
func (c *Collector) GetAll() []*Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*Metric, 0, len(c.metrics))
	for _, m := range c.metrics {
		metricCopy := *m
		result = append(result, &metricCopy)
	}
	return result
}

// Reset clears all metrics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics = make(map[string]*Metric)
}

// RecordOperation folds a finished operation into the counters. Totals are
// labelled by mode; the last-run gauges carry the operation id.
func (c *Collector) RecordOperation(summary *Summary) {
	mode := map[string]string{"mode": string(summary.Mode)}

	c.Increment("operations_total", map[string]string{
		"mode":   string(summary.Mode),
		"status": string(summary.Status),
	})
	c.Add("bytes_transferred_total", float64(summary.BytesTransferred), mode)
	c.Add("items_completed_total", float64(summary.ItemsCompleted), mode)
	c.Add("items_skipped_total", float64(summary.ItemsSkipped), mode)
	c.Add("items_failed_total", float64(summary.ItemsFailed), mode)
	c.Add("items_cancelled_total", float64(summary.ItemsCancelled), mode)

	last := map[string]string{"operation_id": summary.OperationID}
	c.Record("operation_duration_seconds", summary.Duration.Seconds(), last)
	c.Record("operation_speed_bytes_per_second", summary.AverageSpeed, last)
}

// buildKey creates a unique key for a metric with labels
func buildKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString(":" + k + "=" + labels[k])
	}
	return b.String()
}

// GlobalCollector is the global metrics collector
var GlobalCollector = New()

// RecordOperation records to the global collector
func RecordOperation(summary *Summary) {
	GlobalCollector.RecordOperation(summary)
}
