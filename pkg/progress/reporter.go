// Package progress renders transfer progress events for a terminal.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/larrydiffey/difcopy/pkg/core"
)

// Reporter implements core.ProgressSink with real-time terminal output
type Reporter struct {
	writer     io.Writer
	mu         sync.Mutex
	lastRender time.Time
	interval   time.Duration
	state      State
	format     Format
	now        func() time.Time
}

// State represents the current progress state
type State struct {
	OperationID string
	BytesTotal  int64
	BytesDone   int64
	CurrentFile string
	Speed       float64 // bytes per second
	ETA         time.Duration
	Unbounded   bool
	ItemsDone   int
}

// Format represents output format for progress
type Format string

const (
	FormatSimple Format = "simple" // Simple text output
	FormatBar    Format = "bar"    // Progress bar
	FormatNone   Format = "none"   // No output
)

// New creates a new progress reporter
func New(writer io.Writer, format Format) *Reporter {
	return &Reporter{
		writer:   writer,
		format:   format,
		interval: 100 * time.Millisecond,
		now:      time.Now,
	}
}

// Progress records an event and redraws at most every interval; item
// completions always redraw
func (r *Reporter) Progress(ev core.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.OperationID != r.state.OperationID {
		r.state = State{OperationID: ev.OperationID}
	}
	r.state.BytesTotal = ev.OperationTotal
	r.state.BytesDone = ev.OperationBytes
	r.state.CurrentFile = ev.CurrentItem
	r.state.Speed = ev.BytesPerSecond
	r.state.ETA = ev.EstimatedTimeRemaining
	r.state.Unbounded = ev.Unbounded()
	if ev.Done {
		r.state.ItemsDone++
	}

	now := r.now()
	if !ev.Done && now.Sub(r.lastRender) < r.interval {
		return
	}
	r.lastRender = now
	r.render()
}

// Finish prints the final line for a completed operation
func (r *Reporter) Finish(op *core.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.format == FormatNone {
		return
	}

	failed := len(op.ItemsWithStatus(core.ItemFailed))
	fmt.Fprintf(r.writer, "\r\033[K%s: %d/%d items, %s in %s",
		op.Status,
		len(op.ItemsWithStatus(core.ItemCompleted)),
		len(op.Items),
		humanize.IBytes(uint64(op.BytesTransferred())),
		op.Duration().Round(time.Millisecond),
	)
	if failed > 0 {
		fmt.Fprintf(r.writer, ", %d failed", failed)
	}
	fmt.Fprintln(r.writer)
}

// GetState returns the current progress state
func (r *Reporter) GetState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reporter) render() {
	switch r.format {
	case FormatSimple:
		r.renderSimple()
	case FormatBar:
		r.renderBar()
	case FormatNone:
	}
}

func (r *Reporter) percent() float64 {
	if r.state.BytesTotal <= 0 {
		return 0
	}
	return float64(r.state.BytesDone) / float64(r.state.BytesTotal) * 100
}

func (r *Reporter) renderSimple() {
	fmt.Fprintf(r.writer, "\r\033[K%-50s %6.1f%% %12s ETA: %8s",
		truncate(r.state.CurrentFile, 50),
		r.percent(),
		formatSpeed(r.state.Speed),
		formatETA(r.state.ETA, r.state.Unbounded),
	)
}

func (r *Reporter) renderBar() {
	const barWidth = 40
	filled := int(r.percent() / 100.0 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}

	var bar strings.Builder
	bar.WriteByte('[')
	for i := 0; i < barWidth; i++ {
		switch {
		case i < filled:
			bar.WriteByte('=')
		case i == filled:
			bar.WriteByte('>')
		default:
			bar.WriteByte(' ')
		}
	}
	bar.WriteByte(']')

	fmt.Fprintf(r.writer, "\r\033[K%s %6.1f%% %10s / %-10s %12s ETA: %8s",
		bar.String(),
		r.percent(),
		humanize.IBytes(uint64(r.state.BytesDone)),
		humanize.IBytes(uint64(r.state.BytesTotal)),
		formatSpeed(r.state.Speed),
		formatETA(r.state.ETA, r.state.Unbounded),
	)
}

func formatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "-- B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

// formatETA formats the remaining time; unbounded estimates print as dashes
func formatETA(d time.Duration, unbounded bool) string {
	if unbounded {
		return "--:--"
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// truncate keeps the tail of long paths, which carries the file name
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[len(s)-max:]
	}
	return "..." + s[len(s)-max+3:]
}
