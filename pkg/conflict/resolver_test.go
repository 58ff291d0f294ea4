package conflict

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larrydiffey/difcopy/pkg/core"
)

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func setup(t *testing.T, srcContent, dstContent string, srcTime, dstTime time.Time) *core.Item {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "report.txt")
	writeFile(t, src, srcContent, srcTime)
	writeFile(t, dst, dstContent, dstTime)
	return core.NewItem(src, dst, int64(len(srcContent)))
}

func TestResolve_NoCollision(t *testing.T) {
	dir := t.TempDir()
	item := core.NewItem(filepath.Join(dir, "a"), filepath.Join(dir, "missing"), 1)

	action, policy, err := New(nil, nil).Resolve(context.Background(), "op", item, core.ConflictSkip)
	require.NoError(t, err)
	assert.Equal(t, ActionProceed, action)
	assert.Equal(t, core.ConflictSkip, policy)
}

func TestResolve_DecisionTable(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	tests := []struct {
		name       string
		policy     core.ConflictPolicy
		src, dst   string
		srcT, dstT time.Time
		want       Action
	}{
		{"skip", core.ConflictSkip, "a", "b", newer, older, ActionSkip},
		{"overwrite", core.ConflictOverwrite, "a", "b", older, newer, ActionProceed},
		{"newer source overwrites", core.ConflictOverwriteIfNewer, "a", "b", newer, older, ActionProceed},
		{"older source skipped", core.ConflictOverwriteIfNewer, "a", "b", older, newer, ActionSkip},
		{"equal time skipped", core.ConflictOverwriteIfNewer, "a", "b", older, older, ActionSkip},
		{"same size skipped", core.ConflictOverwriteIfSizeDiffers, "aa", "bb", newer, older, ActionSkip},
		{"different size overwrites", core.ConflictOverwriteIfSizeDiffers, "aaa", "b", newer, older, ActionProceed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := setup(t, tt.src, tt.dst, tt.srcT, tt.dstT)
			original := item.DestinationPath

			action, _, err := New(nil, nil).Resolve(context.Background(), "op", item, tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, action)
			assert.Equal(t, original, item.DestinationPath)
		})
	}
}

func TestResolve_RenameIncrementsSuffix(t *testing.T) {
	now := time.Now()
	item := setup(t, "new", "old", now, now)
	dir := filepath.Dir(item.DestinationPath)
	writeFile(t, filepath.Join(dir, "report (1).txt"), "x", now)

	action, _, err := New(nil, nil).Resolve(context.Background(), "op", item, core.ConflictRename)
	require.NoError(t, err)
	assert.Equal(t, ActionProceed, action)
	assert.Equal(t, filepath.Join(dir, "report (2).txt"), item.DestinationPath)
	assert.NoFileExists(t, item.DestinationPath)
}

func TestFreeName(t *testing.T) {
	dir := t.TempDir()

	got, err := FreeName(filepath.Join(dir, "archive.tar"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "archive (1).tar"), got)

	got, err = FreeName(filepath.Join(dir, "Makefile"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Makefile (1)"), got)

	got, err = FreeName(filepath.Join(dir, ".profile"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".profile (1)"), got)
}

func TestResolve_AskApplyToAllIsSticky(t *testing.T) {
	now := time.Now()
	item := setup(t, "a", "b", now, now)

	calls := 0
	asker := core.ConflictAskerFunc(func(ctx context.Context, req core.ConflictRequest) (core.ConflictDecision, error) {
		calls++
		assert.Equal(t, int64(1), req.Source.Size)
		assert.Equal(t, "op-1", req.OperationID)
		return core.ConflictDecision{Resolution: core.ConflictSkip, ApplyToAll: true}, nil
	})

	action, policy, err := New(asker, nil).Resolve(context.Background(), "op-1", item, core.ConflictAsk)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, action)
	assert.Equal(t, core.ConflictSkip, policy)
	assert.Equal(t, 1, calls)
}

func TestResolve_AskOnceKeepsAsking(t *testing.T) {
	now := time.Now()
	item := setup(t, "a", "b", now, now)

	asker := core.ConflictAskerFunc(func(ctx context.Context, req core.ConflictRequest) (core.ConflictDecision, error) {
		return core.ConflictDecision{Resolution: core.ConflictOverwrite}, nil
	})

	action, policy, err := New(asker, nil).Resolve(context.Background(), "op", item, core.ConflictAsk)
	require.NoError(t, err)
	assert.Equal(t, ActionProceed, action)
	assert.Equal(t, core.ConflictAsk, policy)
}

func TestResolve_AskCancel(t *testing.T) {
	now := time.Now()
	item := setup(t, "a", "b", now, now)

	asker := core.ConflictAskerFunc(func(ctx context.Context, req core.ConflictRequest) (core.ConflictDecision, error) {
		return core.ConflictDecision{Resolution: core.ConflictCancel}, nil
	})

	_, _, err := New(asker, nil).Resolve(context.Background(), "op", item, core.ConflictAsk)
	assert.ErrorIs(t, err, core.ErrCancelled)
}

func TestResolve_AskWithoutAskerSkips(t *testing.T) {
	now := time.Now()
	item := setup(t, "a", "b", now, now)

	action, policy, err := New(nil, nil).Resolve(context.Background(), "op", item, core.ConflictAsk)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, action)
	assert.Equal(t, core.ConflictAsk, policy)
}
