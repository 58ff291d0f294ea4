// Package conflict decides what happens when a transfer destination already exists.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/larrydiffey/difcopy/pkg/core"
)

// Action is the outcome of conflict resolution for one item
type Action int

const (
	// ActionProceed transfers the item to its (possibly rewritten) destination
	ActionProceed Action = iota
	// ActionSkip completes the item without transferring
	ActionSkip
)

func (a Action) String() string {
	if a == ActionSkip {
		return "skip"
	}
	return "proceed"
}

// Resolver evaluates the conflict decision table
type Resolver struct {
	asker core.ConflictAsker
	log   *logrus.Entry
}

// New creates a resolver. asker may be nil, in which case Ask degrades to Skip.
func New(asker core.ConflictAsker, log *logrus.Entry) *Resolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{asker: asker, log: log}
}

// Resolve decides the fate of item under policy, the sticky policy of the
// running operation. It returns the policy to use for subsequent items,
// which differs from policy only when an asked decision applies to all.
func (r *Resolver) Resolve(ctx context.Context, opID string, item *core.Item, policy core.ConflictPolicy) (Action, core.ConflictPolicy, error) {
	dst, err := os.Stat(item.DestinationPath)
	if errors.Is(err, fs.ErrNotExist) {
		return ActionProceed, policy, nil
	}
	if err != nil {
		return ActionProceed, policy, fmt.Errorf("stat destination: %w", err)
	}

	src, err := os.Stat(item.SourcePath)
	if err != nil {
		return ActionProceed, policy, fmt.Errorf("stat source: %w", err)
	}

	effective := policy
	if policy == core.ConflictAsk {
		decision, err := r.ask(ctx, opID, item, src, dst)
		if err != nil {
			return ActionProceed, policy, err
		}
		effective = decision.Resolution
		if decision.ApplyToAll {
			policy = decision.Resolution
		}
	}

	action, err := r.apply(effective, item, src, dst)
	if err != nil {
		return ActionProceed, policy, err
	}

	r.log.WithFields(logrus.Fields{
		"function":    "Resolve",
		"item_id":     item.ID,
		"policy":      effective,
		"action":      action,
		"destination": item.DestinationPath,
	}).Debug("Resolved destination conflict")

	return action, policy, nil
}

func (r *Resolver) ask(ctx context.Context, opID string, item *core.Item, src, dst fs.FileInfo) (core.ConflictDecision, error) {
	if r.asker == nil {
		r.log.WithFields(logrus.Fields{
			"function": "ask",
			"item_id":  item.ID,
		}).Warn("No conflict asker registered, skipping item")
		return core.ConflictDecision{Resolution: core.ConflictSkip}, nil
	}

	decision, err := r.asker.Ask(ctx, core.ConflictRequest{
		OperationID: opID,
		Item:        item,
		Source:      core.FileMeta{Size: src.Size(), ModTime: src.ModTime()},
		Destination: core.FileMeta{Size: dst.Size(), ModTime: dst.ModTime()},
	})
	if err != nil {
		return decision, fmt.Errorf("ask conflict resolution: %w", err)
	}

	switch decision.Resolution {
	case core.ConflictCancel:
		return decision, core.ErrCancelled
	case core.ConflictAsk, "":
		// An asker that cannot decide leaves the destination alone
		decision.Resolution = core.ConflictSkip
	}
	return decision, nil
}

func (r *Resolver) apply(policy core.ConflictPolicy, item *core.Item, src, dst fs.FileInfo) (Action, error) {
	switch policy {
	case core.ConflictSkip:
		return ActionSkip, nil
	case core.ConflictOverwriteIfNewer:
		if !src.ModTime().After(dst.ModTime()) {
			return ActionSkip, nil
		}
		return ActionProceed, nil
	case core.ConflictOverwriteIfSizeDiffers:
		if src.Size() == dst.Size() {
			return ActionSkip, nil
		}
		return ActionProceed, nil
	case core.ConflictRename, core.ConflictRenameWithNumber:
		free, err := FreeName(item.DestinationPath)
		if err != nil {
			return ActionProceed, err
		}
		item.DestinationPath = free
		return ActionProceed, nil
	case core.ConflictOverwrite:
		return ActionProceed, nil
	default:
		return ActionProceed, fmt.Errorf("unknown conflict policy: %q", policy)
	}
}

// FreeName returns the first "name (n).ext" sibling of path that does not exist, n >= 1
func FreeName(path string) (string, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		// dotfiles such as ".profile" have no extension to preserve
		stem, ext = base, ""
	}

	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("probe %s: %w", candidate, err)
		}
	}
}
