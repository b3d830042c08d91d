package token

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Sign computes HMAC-SHA256(secret, signingInput).
func Sign(signingInput, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(signingInput)
	return mac.Sum(nil)
}

// VerifySignature recomputes the MAC and compares it in constant time.
func VerifySignature(signingInput, secret, candidate []byte) bool {
	return hmac.Equal(Sign(signingInput, secret), candidate)
}

func signingInput(header, payload string) []byte {
	return []byte(header + "." + payload)
}
