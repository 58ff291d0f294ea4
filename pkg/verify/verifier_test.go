package verify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larrydiffey/difcopy/pkg/core"
)

func pair(t *testing.T, src, dst string) *core.Item {
	t.Helper()
	dir := t.TempDir()
	s := filepath.Join(dir, "src")
	d := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(s, []byte(src), 0o644))
	require.NoError(t, os.WriteFile(d, []byte(dst), 0o644))
	return core.NewItem(s, d, int64(len(src)))
}

func TestVerify_Match(t *testing.T) {
	item := pair(t, "same content", "same content")

	err := New(nil, nil).Verify(context.Background(), core.AlgorithmSHA256, item)
	require.NoError(t, err)
	require.NotNil(t, item.VerificationPassed)
	assert.True(t, *item.VerificationPassed)
	assert.Equal(t, item.SourceHash, item.DestinationHash)
}

func TestVerify_Mismatch(t *testing.T) {
	item := pair(t, "original", "origina1")

	err := New(nil, nil).Verify(context.Background(), core.AlgorithmMD5, item)
	require.ErrorIs(t, err, core.ErrVerificationFailed)
	assert.Equal(t, "Verification failed - file hash mismatch", err.Error())
	require.NotNil(t, item.VerificationPassed)
	assert.False(t, *item.VerificationPassed)
}

func TestVerify_ReusesPrecomputedSourceHashCaseInsensitive(t *testing.T) {
	item := pair(t, "abc", "abc")
	// source is gone, but its digest was recorded while copying
	require.NoError(t, os.Remove(item.SourcePath))
	item.SourceHash = strings.ToUpper("900150983cd24fb0d6963f7d28e17f72")

	err := New(nil, nil).Verify(context.Background(), core.AlgorithmMD5, item)
	require.NoError(t, err)
	assert.True(t, *item.VerificationPassed)
}

func TestVerify_MissingDestination(t *testing.T) {
	item := pair(t, "abc", "abc")
	require.NoError(t, os.Remove(item.DestinationPath))

	err := New(nil, nil).Verify(context.Background(), core.AlgorithmCRC32, item)
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrVerificationFailed)
}

func TestVerifyOperation_ReturnsOnlyNewFailures(t *testing.T) {
	good := pair(t, "good", "good")
	good.Status = core.ItemCompleted

	bad := pair(t, "good", "good")
	bad.Status = core.ItemCompleted
	require.NoError(t, os.WriteFile(bad.DestinationPath, []byte("evil"), 0o644))

	skipped := pair(t, "new", "old")
	skipped.Status = core.ItemCompleted
	skipped.Skipped = true

	failed := pair(t, "x", "y")
	failed.Status = core.ItemFailed

	op := core.NewOperation(core.ModeCopy, good, bad, skipped, failed)

	failures, err := New(nil, nil).VerifyOperation(context.Background(), op, core.AlgorithmNone)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, bad.ID, failures[0].Item.ID)
	assert.ErrorIs(t, failures[0].Error, core.ErrVerificationFailed)

	// statuses are untouched
	assert.Equal(t, core.ItemCompleted, bad.Status)
	assert.Nil(t, bad.VerificationPassed)
}
