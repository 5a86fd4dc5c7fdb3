package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Checksum returns the SHA-256 hex digest of content with every whitespace
// character removed. Chat re-exports frequently reformat whitespace without
// changing anything else, so two contents differing only in whitespace
// fingerprint identically.
func Checksum(content string) string {
	normalized := strings.Join(strings.Fields(content), "")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// BinaryChecksum fingerprints raw bytes as-is, without the whitespace
// normalization applied to text content.
func BinaryChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
