package output

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/larrydiffey/difcopy/pkg/core"
)

// StreamEvent is one line of the NDJSON progress stream
type StreamEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"` // progress, item, item_failed, complete
	OperationID string    `json:"operation_id"`
	ItemID      string    `json:"item_id,omitempty"`
	CurrentFile string    `json:"current_file,omitempty"`
	Status      string    `json:"status,omitempty"`
	Message     string    `json:"message,omitempty"`
	BytesTotal  int64     `json:"bytes_total,omitempty"`
	BytesDone   int64     `json:"bytes_done,omitempty"`
	Percent     float64   `json:"percent,omitempty"`
	Speed       string    `json:"speed,omitempty"`       // e.g. "32 MiB/s"
	ETASeconds  *float64  `json:"eta_seconds,omitempty"` // absent when unbounded
}

// StreamWriter writes newline-delimited JSON events. It is both a
// core.ProgressSink and a core.Notifier.
type StreamWriter struct {
	writer io.Writer
	mu     sync.Mutex
	now    func() time.Time
}

// NewStreamWriter creates a new stream writer
func NewStreamWriter(writer io.Writer) *StreamWriter {
	return &StreamWriter{
		writer: writer,
		now:    time.Now,
	}
}

// Write writes an event as a single JSON line
func (s *StreamWriter) Write(event *StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = s.writer.Write(append(data, '\n'))
	return err
}

// Progress implements core.ProgressSink
func (s *StreamWriter) Progress(ev core.ProgressEvent) {
	event := &StreamEvent{
		Type:        "progress",
		OperationID: ev.OperationID,
		ItemID:      ev.ItemID,
		CurrentFile: ev.CurrentItem,
		Status:      string(ev.ItemStatus),
		BytesTotal:  ev.OperationTotal,
		BytesDone:   ev.OperationBytes,
	}
	if ev.Done {
		event.Type = "item"
	}
	if ev.OperationTotal > 0 {
		event.Percent = float64(ev.OperationBytes) / float64(ev.OperationTotal) * 100
	}
	if ev.BytesPerSecond > 0 {
		event.Speed = humanize.IBytes(uint64(ev.BytesPerSecond)) + "/s"
	}
	if !ev.Unbounded() {
		secs := ev.EstimatedTimeRemaining.Seconds()
		event.ETASeconds = &secs
	}
	_ = s.Write(event)
}

// ItemFailed implements core.Notifier
func (s *StreamWriter) ItemFailed(op *core.Operation, item *core.Item) {
	_ = s.Write(&StreamEvent{
		Type:        "item_failed",
		OperationID: op.ID,
		ItemID:      item.ID,
		CurrentFile: item.SourcePath,
		Status:      string(item.Status),
		Message:     item.ErrorMessage,
	})
}

// OperationCompleted implements core.Notifier
func (s *StreamWriter) OperationCompleted(op *core.Operation) {
	_ = s.Write(&StreamEvent{
		Type:        "complete",
		OperationID: op.ID,
		Status:      string(op.Status),
		BytesTotal:  op.TotalBytes(),
		BytesDone:   op.BytesTransferred(),
	})
}
