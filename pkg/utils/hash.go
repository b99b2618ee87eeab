package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString derives a stable hex identifier from input. Used for cache keys
// and document IDs, so the output must never change between releases.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}
