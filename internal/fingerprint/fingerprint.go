// Package fingerprint computes content fingerprints for change detection.
//
// A fingerprint is a hash of a record's serialized bytes, never a
// modification-time heuristic, so clock skew between writers cannot produce
// false negatives.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
