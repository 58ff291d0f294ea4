package scan

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larrydiffey/difcopy/pkg/core"
)

func write(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func destinations(items []*core.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.DestinationPath)
	}
	sort.Strings(out)
	return out
}

func TestPlan_SingleFileToNewPath(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	write(t, src, 10)
	dest := filepath.Join(dir, "renamed.txt")

	plan, err := New(nil).Plan(context.Background(), []string{src}, dest)
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	assert.Equal(t, dest, plan.Items[0].DestinationPath)
	assert.Equal(t, int64(10), plan.Items[0].Size)
	assert.Equal(t, core.ItemPending, plan.Items[0].Status)
}

func TestPlan_FilesIntoDirectory(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "src", "a.txt")
	b := filepath.Join(dir, "src", "b.bin")
	write(t, a, 1)
	write(t, b, 2)
	dest := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(dest, 0o755))

	plan, err := New(nil).Plan(context.Background(), []string{a, b}, dest)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dest, "a.txt"), filepath.Join(dest, "b.bin")}, destinations(plan.Items))
	assert.Equal(t, int64(3), plan.TotalSize)
	assert.Equal(t, int64(1), plan.FileTypes[".txt"])
}

func TestPlan_DirectoryTree(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "photos")
	write(t, filepath.Join(root, "2024", "x.jpg"), 5)
	write(t, filepath.Join(root, "2024", "y.tmp"), 5)
	write(t, filepath.Join(root, "README"), 3)
	dest := filepath.Join(dir, "backup")

	plan, err := New(nil).WithFilters(nil, []string{"*.tmp"}).Plan(context.Background(), []string{root}, dest)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dest, "photos", "2024", "x.jpg"),
		filepath.Join(dest, "photos", "README"),
	}, destinations(plan.Items))
	assert.Equal(t, int64(2), plan.TotalFiles)
	assert.Equal(t, int64(1), plan.FileTypes["(no extension)"])
}

func TestPlan_IncludeFilter(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "docs")
	write(t, filepath.Join(root, "a.md"), 1)
	write(t, filepath.Join(root, "b.txt"), 1)

	plan, err := New(nil).WithFilters([]string{"*.md"}, nil).Plan(context.Background(), []string{root}, filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
	assert.Equal(t, "a.md", filepath.Base(plan.Items[0].SourcePath))
}

func TestPlan_SymlinksIgnored(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "src")
	write(t, filepath.Join(root, "real.txt"), 1)
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))

	plan, err := New(nil).Plan(context.Background(), []string{root}, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Len(t, plan.Items, 1)
	assert.Len(t, plan.Ignored, 1)
}

func TestPlan_Errors(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "src")
	write(t, filepath.Join(root, "a"), 1)
	s := New(nil)

	_, err := s.Plan(context.Background(), nil, dir)
	assert.Error(t, err)

	_, err = s.Plan(context.Background(), []string{filepath.Join(dir, "missing")}, dir)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = s.Plan(context.Background(), []string{"user@host:/data"}, dir)
	assert.ErrorIs(t, err, ErrRemotePath)

	_, err = s.Plan(context.Background(), []string{root}, filepath.Join(root, "nested"))
	assert.Error(t, err)
}

func TestPlan_Cancelled(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "src")
	write(t, filepath.Join(root, "a"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Plan(ctx, []string{root}, filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithin(t *testing.T) {
	assert.True(t, within("/a/b", "/a"))
	assert.True(t, within("/a", "/a"))
	assert.False(t, within("/ab", "/a"))
	assert.False(t, within("/x", "/a"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("*.go", "file?.txt"))
	assert.Error(t, Validate("[unterminated"))
}
