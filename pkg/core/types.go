package core

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// TransferMode selects copy or move semantics for every item of an operation
type TransferMode string

const (
	ModeCopy TransferMode = "copy"
	ModeMove TransferMode = "move"
)

// Algorithm is a checksum algorithm used for verification
type Algorithm string

const (
	AlgorithmNone    Algorithm = "none"
	AlgorithmMD5     Algorithm = "md5"
	AlgorithmSHA1    Algorithm = "sha1"
	AlgorithmSHA256  Algorithm = "sha256"
	AlgorithmCRC32   Algorithm = "crc32"
	AlgorithmBLAKE2b Algorithm = "blake2b" // BLAKE2b-256
)

// Enabled reports whether the algorithm requests verification
func (a Algorithm) Enabled() bool {
	return a != "" && a != AlgorithmNone
}

// ConflictPolicy decides what happens when a destination already exists
type ConflictPolicy string

const (
	ConflictAsk                    ConflictPolicy = "ask"
	ConflictSkip                   ConflictPolicy = "skip"
	ConflictOverwrite              ConflictPolicy = "overwrite"
	ConflictOverwriteIfNewer       ConflictPolicy = "overwrite_if_newer"
	ConflictOverwriteIfSizeDiffers ConflictPolicy = "overwrite_if_size_differs"
	ConflictRename                 ConflictPolicy = "rename"
	ConflictRenameWithNumber       ConflictPolicy = "rename_with_number"
	ConflictCancel                 ConflictPolicy = "cancel" // only valid as an answer from a ConflictAsker
)

// SpeedKind is the rate limiting mode of an operation
type SpeedKind string

const (
	SpeedNormal    SpeedKind = "normal"
	SpeedSlow      SpeedKind = "slow"
	SpeedVerySlow  SpeedKind = "very_slow"
	SpeedThrottled SpeedKind = "throttled"
)

// SpeedMode bounds transfer rate. BytesPerSecond only applies to SpeedThrottled.
type SpeedMode struct {
	Kind           SpeedKind `json:"kind" yaml:"kind"`
	BytesPerSecond int64     `json:"bytes_per_second,omitempty" yaml:"bytes_per_second,omitempty"`
}

// Throttled returns a throttled speed mode bounded to bps bytes per second
func Throttled(bps int64) SpeedMode {
	return SpeedMode{Kind: SpeedThrottled, BytesPerSecond: bps}
}

// OperationStatus is the lifecycle state of an operation
type OperationStatus string

const (
	OperationPending    OperationStatus = "pending"
	OperationInProgress OperationStatus = "in_progress"
	OperationCompleted  OperationStatus = "completed"
	OperationFailed     OperationStatus = "failed"
	OperationCancelled  OperationStatus = "cancelled"
)

// Terminal reports whether the status is final
func (s OperationStatus) Terminal() bool {
	return s == OperationCompleted || s == OperationFailed || s == OperationCancelled
}

// ItemStatus is the lifecycle state of a single item
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemInProgress ItemStatus = "in_progress"
	ItemVerifying  ItemStatus = "verifying"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
	ItemCancelled  ItemStatus = "cancelled"
)

// UnboundedETA is reported when the current speed is zero or unknown
const UnboundedETA = time.Duration(math.MaxInt64)

// Item is one source to destination file transfer within an operation
type Item struct {
	ID                 string     `json:"id"`
	SourcePath         string     `json:"source_path"`
	DestinationPath    string     `json:"destination_path"`
	Size               int64      `json:"size"`
	Status             ItemStatus `json:"status"`
	Paused             bool       `json:"paused,omitempty"`
	BytesTransferred   int64      `json:"bytes_transferred"`
	SourceHash         string     `json:"source_hash,omitempty"`
	DestinationHash    string     `json:"destination_hash,omitempty"`
	VerificationPassed *bool      `json:"verification_passed,omitempty"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	Skipped            bool       `json:"skipped,omitempty"`
}

// NewItem creates a pending item
func NewItem(source, destination string, size int64) *Item {
	return &Item{
		ID:              uuid.NewString(),
		SourcePath:      source,
		DestinationPath: destination,
		Size:            size,
		Status:          ItemPending,
	}
}

// Reset re-arms the item for another run
func (i *Item) Reset() {
	i.Status = ItemPending
	i.Paused = false
	i.BytesTransferred = 0
	i.SourceHash = ""
	i.DestinationHash = ""
	i.VerificationPassed = nil
	i.ErrorMessage = ""
	i.Skipped = false
}

// Fail marks the item failed with the error's message
func (i *Item) Fail(err error) {
	i.Status = ItemFailed
	i.Paused = false
	i.ErrorMessage = err.Error()
}

// AddBytes accumulates transferred bytes, raising Size when the source
// grew after enumeration so BytesTransferred never exceeds it.
func (i *Item) AddBytes(n int64) {
	i.BytesTransferred += n
	if i.BytesTransferred > i.Size {
		i.Size = i.BytesTransferred
	}
}

// Operation is a batch copy/move request processed as a unit by the queue
type Operation struct {
	ID                            string          `json:"id"`
	Mode                          TransferMode    `json:"mode"`
	Items                         []*Item         `json:"items"`
	Verification                  Algorithm       `json:"verification"`
	ConflictHandling              ConflictPolicy  `json:"conflict_handling"`
	Speed                         SpeedMode       `json:"speed"`
	PreserveTimestamps            bool            `json:"preserve_timestamps"`
	PreserveAttributes            bool            `json:"preserve_attributes"`
	DeleteSourceAfterVerification bool            `json:"delete_source_after_verification"`
	Priority                      int             `json:"priority"`
	Status                        OperationStatus `json:"status"`
	Paused                        bool            `json:"paused,omitempty"`
	CreatedAt                     time.Time       `json:"created_at"`
	StartTime                     *time.Time      `json:"start_time,omitempty"`
	EndTime                       *time.Time      `json:"end_time,omitempty"`
}

// NewOperation creates a pending operation with engine defaults
func NewOperation(mode TransferMode, items ...*Item) *Operation {
	return &Operation{
		ID:               uuid.NewString(),
		Mode:             mode,
		Items:            items,
		Verification:     AlgorithmNone,
		ConflictHandling: ConflictAsk,
		Speed:            SpeedMode{Kind: SpeedNormal},
		Status:           OperationPending,
		CreatedAt:        time.Now(),
	}
}

// TotalBytes is the sum of item sizes
func (o *Operation) TotalBytes() int64 {
	return lo.SumBy(o.Items, func(it *Item) int64 { return it.Size })
}

// BytesTransferred is the sum of bytes moved over all items
func (o *Operation) BytesTransferred() int64 {
	return lo.SumBy(o.Items, func(it *Item) int64 { return it.BytesTransferred })
}

// Item looks up an item by id
func (o *Operation) Item(id string) (*Item, bool) {
	return lo.Find(o.Items, func(it *Item) bool { return it.ID == id })
}

// ItemsWithStatus returns the items currently in the given status
func (o *Operation) ItemsWithStatus(status ItemStatus) []*Item {
	return lo.Filter(o.Items, func(it *Item, _ int) bool { return it.Status == status })
}

// MarkStarted moves the operation to in_progress. StartTime is only set on the first call.
func (o *Operation) MarkStarted(now time.Time) {
	o.Status = OperationInProgress
	if o.StartTime == nil {
		o.StartTime = &now
	}
}

// MarkFinished sets the terminal status and EndTime. It is a no-op once the
// operation already has an EndTime.
func (o *Operation) MarkFinished(status OperationStatus, now time.Time) {
	if o.EndTime != nil {
		return
	}
	o.Status = status
	o.Paused = false
	o.EndTime = &now
}

// Duration returns the wall time of the finished run, or zero
func (o *Operation) Duration() time.Duration {
	if o.StartTime == nil || o.EndTime == nil {
		return 0
	}
	return o.EndTime.Sub(*o.StartTime)
}

// Clone returns a deep copy
func (o *Operation) Clone() *Operation {
	c := *o
	c.Items = lo.Map(o.Items, func(it *Item, _ int) *Item {
		ic := *it
		if it.VerificationPassed != nil {
			ic.VerificationPassed = lo.ToPtr(*it.VerificationPassed)
		}
		return &ic
	})
	if o.StartTime != nil {
		c.StartTime = lo.ToPtr(*o.StartTime)
	}
	if o.EndTime != nil {
		c.EndTime = lo.ToPtr(*o.EndTime)
	}
	return &c
}

// FileMeta is the metadata consulted by conflict resolution
type FileMeta struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ProgressEvent is emitted after every chunk and at item completion
type ProgressEvent struct {
	OperationID            string        `json:"operation_id"`
	ItemID                 string        `json:"item_id"`
	CurrentItem            string        `json:"current_item"`
	ItemBytes              int64         `json:"item_bytes"`
	ItemSize               int64         `json:"item_size"`
	OperationBytes         int64         `json:"operation_bytes"`
	OperationTotal         int64         `json:"operation_total"`
	BytesPerSecond         float64       `json:"bytes_per_second"`
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining"`
	ItemStatus             ItemStatus    `json:"item_status"`
	Done                   bool          `json:"done"` // item reached a final status
}

// Unbounded reports whether no time estimate is available
func (e ProgressEvent) Unbounded() bool {
	return e.EstimatedTimeRemaining == UnboundedETA
}

// ConflictRequest is handed to a ConflictAsker for a colliding item
type ConflictRequest struct {
	OperationID string
	Item        *Item
	Source      FileMeta
	Destination FileMeta
}

// ConflictDecision is the answer of a ConflictAsker
type ConflictDecision struct {
	Resolution ConflictPolicy
	ApplyToAll bool
}
