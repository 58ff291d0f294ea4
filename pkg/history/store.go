// Package history keeps a bounded, file-backed record of finished
// operations and re-arms failed items for retry.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/larrydiffey/difcopy/pkg/core"
	"github.com/larrydiffey/difcopy/pkg/retry"
)

// DefaultLimit is the number of operations kept
const DefaultLimit = 100

// fileVersion is written into the history document
const fileVersion = 1

// document is the persisted form of the history
type document struct {
	Version    int               `json:"version"`
	Operations []*core.Operation `json:"operations"`
}

// Store holds finished operations, newest first. Stored entries are never
// mutated in place, so a snapshot of the slice can be encoded without mu.
type Store struct {
	// mu guards entries and gen; it is never held across I/O
	mu      sync.Mutex
	entries []*core.Operation
	gen     uint64

	// writeMu serializes file writes; written is the last persisted gen
	writeMu sync.Mutex
	written uint64

	path   string
	limit  int
	policy *retry.Policy
	log    *logrus.Entry
}

// snapshot is a generation of the entry list awaiting persistence
type snapshot struct {
	gen     uint64
	entries []*core.Operation
}

// DefaultPath returns ~/.difcopy/history.json
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".difcopy", "history.json"), nil
}

// Open loads the history at path. A missing or malformed file yields an
// empty history; only an unusable directory is an error. An empty path
// keeps the history in memory only. limit is capped at DefaultLimit.
func Open(path string, limit int, log *logrus.Entry) (*Store, error) {
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Store{
		path:   path,
		limit:  limit,
		policy: writePolicy(),
		log:    log,
	}

	if path == "" {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	s.entries = s.load()
	return s, nil
}

// writePolicy retries transient write failures; permission and disk space
// problems are reported at once
func writePolicy() *retry.Policy {
	p := retry.DefaultPolicy()
	p.Retryable = func(err error) bool {
		return core.IsRetryable(core.ExitCodeForError(err, core.ExitTransferFailed))
	}
	return p
}

// load reads the history file, best effort
func (s *Store) load() []*core.Operation {
	log := s.log.WithFields(logrus.Fields{
		"function": "load",
		"path":     s.path,
	})

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		log.WithError(err).Warn("Failed to read history, starting empty")
		return nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.WithError(err).Warn("Malformed history, starting empty")
		return nil
	}

	entries := lo.Filter(doc.Operations, func(op *core.Operation, _ int) bool {
		return op != nil && op.ID != ""
	})
	if len(entries) > s.limit {
		entries = entries[:s.limit]
	}

	log.WithField("operations", len(entries)).Debug("History loaded")
	return entries
}

// commit starts a new generation of the entry list. Callers hold s.mu.
func (s *Store) commit() snapshot {
	s.gen++
	return snapshot{gen: s.gen, entries: slices.Clone(s.entries)}
}

// persist writes snap atomically unless a newer generation already reached
// the file. Callers must not hold s.mu.
func (s *Store) persist(snap snapshot) error {
	if s.path == "" {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if snap.gen <= s.written {
		return nil
	}

	data, err := json.MarshalIndent(document{Version: fileVersion, Operations: snap.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	res := retry.Do(context.Background(), s.policy, func() error {
		return writeAtomic(s.path, data)
	})
	if !res.Success {
		return fmt.Errorf("write history: %w", res.Error)
	}
	s.written = snap.gen
	return nil
}

// writeAtomic replaces path through a temporary sibling and a rename
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename tmp->final: %w", err)
	}
	return nil
}

// Add records a snapshot of op as the newest entry. An older entry with the
// same id (a previous run of a retried operation) is replaced, and the
// oldest entries beyond the limit are evicted.
func (s *Store) Add(op *core.Operation) error {
	entry := op.Clone()

	s.mu.Lock()
	rest := lo.Reject(s.entries, func(e *core.Operation, _ int) bool { return e.ID == op.ID })
	s.entries = append([]*core.Operation{entry}, rest...)

	if len(s.entries) > s.limit {
		evicted := len(s.entries) - s.limit
		s.entries = s.entries[:s.limit]
		s.log.WithFields(logrus.Fields{
			"function": "Add",
			"evicted":  evicted,
		}).Debug("Evicted oldest history entries")
	}
	snap := s.commit()
	s.mu.Unlock()

	return s.persist(snap)
}

// List returns copies of all entries, newest first
func (s *Store) List() []*core.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.Map(s.entries, func(op *core.Operation, _ int) *core.Operation { return op.Clone() })
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Get returns a copy of the entry with the given id
func (s *Store) Get(id string) (*core.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrOperationNotFound, id)
	}
	return op.Clone(), nil
}

// Delete removes an entry
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.find(id); !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", core.ErrOperationNotFound, id)
	}
	s.entries = lo.Reject(s.entries, func(e *core.Operation, _ int) bool { return e.ID == id })
	snap := s.commit()
	s.mu.Unlock()

	return s.persist(snap)
}

// Clear removes every entry
func (s *Store) Clear() error {
	s.mu.Lock()
	s.entries = nil
	snap := s.commit()
	s.mu.Unlock()

	return s.persist(snap)
}

// PrepareRetry returns a copy of the historical operation ready to be
// enqueued again: every failed item is reset to pending, other items keep
// their outcome, and the run status and timestamps are cleared.
func (s *Store) PrepareRetry(id string) (*core.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rerun, err := s.rearm(id)
	if err != nil {
		return nil, err
	}
	for _, item := range rerun.ItemsWithStatus(core.ItemFailed) {
		item.Reset()
	}

	s.log.WithFields(logrus.Fields{
		"function":     "PrepareRetry",
		"operation_id": id,
		"reset_items":  len(rerun.ItemsWithStatus(core.ItemPending)),
	}).Info("Prepared operation for retry")

	return rerun, nil
}

// Resubmit returns a copy of the historical operation with its run status
// and timestamps cleared and every item left as stored, so that only items
// already pending (see ResetItem) run again.
func (s *Store) Resubmit(id string) (*core.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rearm(id)
}

func (s *Store) rearm(id string) (*core.Operation, error) {
	op, ok := s.find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrOperationNotFound, id)
	}

	rerun := op.Clone()
	rerun.Status = core.OperationPending
	rerun.Paused = false
	rerun.StartTime = nil
	rerun.EndTime = nil
	return rerun, nil
}

// ResetItem re-arms one failed item of a historical operation. The entry is
// replaced by an updated copy.
func (s *Store) ResetItem(opID, itemID string) error {
	s.mu.Lock()
	snap, err := s.resetItem(opID, itemID)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(snap)
}

func (s *Store) resetItem(opID, itemID string) (snapshot, error) {
	idx := slices.IndexFunc(s.entries, func(op *core.Operation) bool { return op.ID == opID })
	if idx < 0 {
		return snapshot{}, fmt.Errorf("%w: %s", core.ErrOperationNotFound, opID)
	}

	updated := s.entries[idx].Clone()
	item, ok := updated.Item(itemID)
	if !ok {
		return snapshot{}, fmt.Errorf("%w: %s", core.ErrItemNotFound, itemID)
	}
	if item.Status != core.ItemFailed {
		return snapshot{}, fmt.Errorf("%w: %s is %s", core.ErrItemNotFailed, itemID, item.Status)
	}

	item.Reset()
	s.entries[idx] = updated
	return s.commit(), nil
}

// Path returns the history file path
func (s *Store) Path() string {
	return s.path
}

func (s *Store) find(id string) (*core.Operation, bool) {
	return lo.Find(s.entries, func(op *core.Operation) bool { return op.ID == id })
}
