// Package checksum computes streaming content digests for verification.
package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/larrydiffey/difcopy/pkg/core"
)

// bufferSize matches the transfer chunk size
const bufferSize = 80 * 1024

// UnsupportedAlgorithmError is returned for algorithms without a digest
type UnsupportedAlgorithmError struct {
	Algorithm core.Algorithm
}

func (e *UnsupportedAlgorithmError) Error() string {
	return fmt.Sprintf("unsupported checksum algorithm: %q", e.Algorithm)
}

// New returns a fresh hash.Hash for the algorithm
func New(alg core.Algorithm) (hash.Hash, error) {
	switch alg {
	case core.AlgorithmMD5:
		return md5.New(), nil
	case core.AlgorithmSHA1:
		return sha1.New(), nil
	case core.AlgorithmSHA256:
		return sha256.New(), nil
	case core.AlgorithmCRC32:
		return crc32.NewIEEE(), nil
	case core.AlgorithmBLAKE2b:
		return blake2b.New256(nil)
	default:
		return nil, &UnsupportedAlgorithmError{Algorithm: alg}
	}
}

// Supported lists the algorithms that produce a digest
func Supported() []core.Algorithm {
	return []core.Algorithm{
		core.AlgorithmCRC32,
		core.AlgorithmMD5,
		core.AlgorithmSHA1,
		core.AlgorithmSHA256,
		core.AlgorithmBLAKE2b,
	}
}

// Provider hashes byte streams. The zero value is ready to use.
type Provider struct{}

// NewProvider creates a checksum provider
func NewProvider() *Provider {
	return &Provider{}
}

// Hash streams r through the algorithm and returns the lowercase hex digest
func (p *Provider) Hash(ctx context.Context, r io.Reader, alg core.Algorithm) (string, error) {
	h, err := New(alg)
	if err != nil {
		return "", err
	}

	buf := make([]byte, bufferSize)
	for {
		if ctx.Err() != nil {
			return "", core.ErrCancelled
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("read: %w", rerr)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile hashes the file at path
func (p *Provider) HashFile(ctx context.Context, path string, alg core.Algorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sum, err := p.Hash(ctx, f, alg)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return sum, nil
}
