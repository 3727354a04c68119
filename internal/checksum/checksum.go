// Package checksum computes the content digests used for change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Supported algorithms.
const (
	SHA256 = "sha256"
	BLAKE3 = "blake3"
)

// Func digests raw file bytes into a hex string.
type Func func(data []byte) string

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumBlake3 returns the hex-encoded 256-bit BLAKE3 digest of data.
func SumBlake3(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ForAlgorithm returns the digest function registered under name.
// The digest is prefixed with the algorithm so stored hashes from a
// different algorithm never compare equal.
func ForAlgorithm(name string) (Func, error) {
	switch name {
	case "", SHA256:
		return func(data []byte) string { return SHA256 + ":" + Sum(data) }, nil
	case BLAKE3:
		return func(data []byte) string { return BLAKE3 + ":" + SumBlake3(data) }, nil
	default:
		return nil, fmt.Errorf("checksum: unknown algorithm %q", name)
	}
}
