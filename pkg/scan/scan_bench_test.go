package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// BenchmarkPlan benchmarks enumeration of a flat directory
func BenchmarkPlan(b *testing.B) {
	root := filepath.Join(b.TempDir(), "src")
	if err := os.Mkdir(root, 0o755); err != nil {
		b.Fatalf("Failed to create source dir: %v", err)
	}

	for i := 0; i < 100; i++ {
		path := filepath.Join(root, fmt.Sprintf("file%d.txt", i))
		if err := os.WriteFile(path, []byte("test content"), 0o644); err != nil {
			b.Fatalf("Failed to create test file: %v", err)
		}
	}

	scanner := New(nil).WithFilters(nil, []string{"*.tmp"})
	dest := filepath.Join(b.TempDir(), "dst")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = scanner.Plan(context.Background(), []string{root}, dest)
	}
}

// BenchmarkIsRemote benchmarks remote path detection
func BenchmarkIsRemote(b *testing.B) {
	testCases := []string{
		"/local/path",
		"s3://bucket/key",
		"user@host:/path",
		"https://example.com",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			_ = isRemote(tc)
		}
	}
}
