package checksum

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

func TestProvider_KnownDigests(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()

	tests := []struct {
		alg  core.Algorithm
		want string
	}{
		{core.AlgorithmMD5, "900150983cd24fb0d6963f7d28e17f72"},
		{core.AlgorithmSHA1, "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{core.AlgorithmSHA256, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{core.AlgorithmCRC32, "352441c2"},
	}

	for _, tt := range tests {
		t.Run(string(tt.alg), func(t *testing.T) {
			got, err := p.Hash(ctx, strings.NewReader("abc"), tt.alg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProvider_BLAKE2bLength(t *testing.T) {
	got, err := NewProvider().Hash(context.Background(), strings.NewReader("abc"), core.AlgorithmBLAKE2b)
	require.NoError(t, err)
	assert.Len(t, got, 64)
}

func TestProvider_Unsupported(t *testing.T) {
	_, err := NewProvider().Hash(context.Background(), strings.NewReader("abc"), core.AlgorithmNone)
	var unsupported *UnsupportedAlgorithmError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, core.AlgorithmNone, unsupported.Algorithm)
}

func TestProvider_HashFileStreamsLargeInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bin")
	data := []byte(strings.Repeat("0123456789", 50_000))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	p := NewProvider()
	fromFile, err := p.HashFile(context.Background(), path, core.AlgorithmSHA256)
	require.NoError(t, err)

	fromReader, err := p.Hash(context.Background(), strings.NewReader(string(data)), core.AlgorithmSHA256)
	require.NoError(t, err)
	assert.Equal(t, fromReader, fromFile)
}

func TestProvider_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProvider().Hash(ctx, strings.NewReader("abc"), core.AlgorithmMD5)
	assert.ErrorIs(t, err, core.ErrCancelled)
}
