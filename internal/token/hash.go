package token

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken is the one-way digest stored in place of a raw bearer token.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
