// Package transfer moves the bytes of a single item: chunked copy with
// cooperative pause and cancellation, rate limiting, progress emission and
// timestamp/attribute preservation.
package transfer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/larrydiffey/difcopy/pkg/checksum"
	"github.com/larrydiffey/difcopy/pkg/core"
)

// DefaultChunkSize is the size of each read/write in bytes
const DefaultChunkSize = 80 * 1024

const (
	slowDelay     = 10 * time.Millisecond
	verySlowDelay = 50 * time.Millisecond
)

// Delay returns the pause inserted after each chunk for a speed mode
func Delay(mode core.SpeedMode, chunkSize int) time.Duration {
	switch mode.Kind {
	case core.SpeedSlow:
		return slowDelay
	case core.SpeedVerySlow:
		return verySlowDelay
	case core.SpeedThrottled:
		if mode.BytesPerSecond <= 0 {
			return 0
		}
		ms := int64(chunkSize) * 1000 / mode.BytesPerSecond
		return time.Duration(ms) * time.Millisecond
	default:
		return 0
	}
}

// Executor copies one item at a time. It is not safe for concurrent Copy
// calls; the controller runs a single worker.
type Executor struct {
	chunkSize int
	gate      *Gate
	speed     speedMeter
	now       func() time.Time
	log       *logrus.Entry
}

// New creates an executor that waits on gate between chunks
func New(gate *Gate, log *logrus.Entry) *Executor {
	if gate == nil {
		gate = NewGate()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Executor{
		chunkSize: DefaultChunkSize,
		gate:      gate,
		now:       time.Now,
		log:       log,
	}
}

// WithChunkSize overrides the chunk size
func (e *Executor) WithChunkSize(size int) *Executor {
	if size > 0 {
		e.chunkSize = size
	}
	return e
}

// ChunkSize returns the configured chunk size
func (e *Executor) ChunkSize() int {
	return e.chunkSize
}

// CurrentSpeed returns the last sampled throughput in bytes per second
func (e *Executor) CurrentSpeed() float64 {
	return e.speed.get()
}

// Copy transfers item.SourcePath to item.DestinationPath, truncating any
// existing destination. It returns core.ErrCancelled when cancellation was
// observed; the partially written destination is left in place.
func (e *Executor) Copy(ctx context.Context, op *core.Operation, item *core.Item, sink core.ProgressSink) error {
	log := e.log.WithFields(logrus.Fields{
		"function":     "Copy",
		"operation_id": op.ID,
		"item_id":      item.ID,
		"source":       item.SourcePath,
		"destination":  item.DestinationPath,
	})

	src, err := os.Open(item.SourcePath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	srcInfo, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !srcInfo.Mode().IsRegular() {
		return fmt.Errorf("source is not a regular file: %s", item.SourcePath)
	}

	if dstInfo, err := os.Stat(item.DestinationPath); err == nil && os.SameFile(srcInfo, dstInfo) {
		return core.ErrSameFile
	}

	if err := os.MkdirAll(filepath.Dir(item.DestinationPath), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	dst, err := os.OpenFile(item.DestinationPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = dst.Close()
		}
	}()

	var digest hash.Hash
	if op.Verification.Enabled() {
		if digest, err = checksum.New(op.Verification); err != nil {
			return err
		}
	}

	log.Debug("Starting chunked copy")

	delay := Delay(op.Speed, e.chunkSize)
	buf := make([]byte, e.chunkSize)

	for {
		if ctx.Err() != nil {
			log.Info("Cancellation observed, leaving partial destination")
			return core.ErrCancelled
		}

		if e.gate.Paused() {
			item.Paused = true
			log.Debug("Transfer paused")
		}
		waited, err := e.gate.Wait(ctx)
		item.Paused = false
		if err != nil {
			return err
		}
		if waited {
			// time spent paused is not throughput
			e.speed.reset(e.now())
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write destination: %w", werr)
			}
			if digest != nil {
				digest.Write(buf[:n])
			}
			item.AddBytes(int64(n))
			speed := e.speed.add(int64(n), e.now())
			e.emit(sink, op, item, speed)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read source: %w", rerr)
		}

		if delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	closed = true
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}

	if digest != nil {
		item.SourceHash = hex.EncodeToString(digest.Sum(nil))
	}

	if op.PreserveAttributes {
		if err := os.Chmod(item.DestinationPath, srcInfo.Mode().Perm()); err != nil {
			return fmt.Errorf("preserve attributes: %w", err)
		}
	}
	if op.PreserveTimestamps {
		if err := os.Chtimes(item.DestinationPath, accessTime(srcInfo), srcInfo.ModTime()); err != nil {
			return fmt.Errorf("preserve timestamps: %w", err)
		}
	}

	log.WithField("bytes", item.BytesTransferred).Debug("Chunked copy finished")
	return nil
}

// DeleteSource removes the source file of a transferred item
func (e *Executor) DeleteSource(item *core.Item) error {
	if err := os.Remove(item.SourcePath); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}

// Progress emits an event for item using the current speed, e.g. when the
// item reaches its final status.
func (e *Executor) Progress(sink core.ProgressSink, op *core.Operation, item *core.Item) {
	e.emit(sink, op, item, e.speed.get())
}

// Begin starts the speed sampling window for an operation. The window runs
// across items so operations of many small files still get sampled.
func (e *Executor) Begin() {
	e.speed.clear()
	e.speed.reset(e.now())
}

// Idle clears the speed reading between operations
func (e *Executor) Idle() {
	e.speed.clear()
}

func (e *Executor) emit(sink core.ProgressSink, op *core.Operation, item *core.Item, speed float64) {
	if sink == nil {
		return
	}

	total := op.TotalBytes()
	done := op.BytesTransferred()
	eta := core.UnboundedETA
	if speed > 0 {
		remaining := total - done
		if remaining < 0 {
			remaining = 0
		}
		eta = time.Duration(float64(remaining) / speed * float64(time.Second))
	}

	sink.Progress(core.ProgressEvent{
		OperationID:            op.ID,
		ItemID:                 item.ID,
		CurrentItem:            item.SourcePath,
		ItemBytes:              item.BytesTransferred,
		ItemSize:               item.Size,
		OperationBytes:         done,
		OperationTotal:         total,
		BytesPerSecond:         speed,
		EstimatedTimeRemaining: eta,
		ItemStatus:             item.Status,
		Done:                   isFinal(item.Status),
	})
}

func isFinal(s core.ItemStatus) bool {
	return s == core.ItemCompleted || s == core.ItemFailed || s == core.ItemCancelled
}

// sleep waits for d unless ctx is cancelled first
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return core.ErrCancelled
	}
}
