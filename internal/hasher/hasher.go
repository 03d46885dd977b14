// Package hasher computes the two content fingerprints the duplicate finder
// stages on: a fast 64-bit xxh3 fingerprint used to form candidate groups,
// and an optional strong 256-bit sha256 hash used to confirm them.
//
// Both functions stream the whole file through a bounded buffer rather than
// reading it into memory.
package hasher

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// blockSize is the read buffer size used by both hash functions.
const blockSize = 64 * 1024

// Fingerprint streams path through a 64-bit xxh3 state and returns the
// digest. This is the fast first-pass hash used to form candidate groups
// and the group id carried in the snapshot text.
func Fingerprint(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := xxh3.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return h.Sum64(), nil
}

// StrongHash streams path through sha256 and returns the 32-byte digest.
// Used as the optional confirmation stage, skipped
// entirely when the caller runs in quick mode.
func StrongHash(path string) ([32]byte, error) {
	var out [32]byte

	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return out, fmt.Errorf("hash %s: %w", path, err)
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}
