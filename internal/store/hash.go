package store

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash computes a content-addressable hash for one capture: the
// device MAC plus the raw reassembled buffer. Re-fetching an unchanged
// device-resident log therefore lands on the same capture instead of a
// duplicate.
func ContentHash(deviceMAC string, raw []byte) string {
	h := sha256.New()
	h.Write([]byte(deviceMAC))
	h.Write([]byte{0})
	h.Write(raw)
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// ShortHash returns a shortened version of the hash for display purposes.
func ShortHash(fullHash string) string {
	// Remove "sha256:" prefix and take first 12 chars
	if len(fullHash) > 19 {
		return fullHash[7:19]
	}
	return fullHash
}
