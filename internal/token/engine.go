package token

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Engine issues and verifies HS256 tokens. It holds no secret: callers pass
// the signing key on every call.
type Engine struct {
	// SubjectClaim names the payload key carrying the subject, e.g. "userId".
	SubjectClaim string
	// FutureLeeway bounds how far iat may be ahead of the verifier's clock.
	// Zero disables the check.
	FutureLeeway time.Duration
}

func NewEngine(subjectClaim string, futureLeeway time.Duration) *Engine {
	if subjectClaim == "" {
		subjectClaim = SubjectUserID
	}
	return &Engine{SubjectClaim: subjectClaim, FutureLeeway: futureLeeway}
}

// Issue stamps iat/exp from now and ttl and returns the signed compact token.
// ttl is truncated to whole seconds.
func (e *Engine) Issue(c Claims, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	ttlSec := int64(ttl / time.Second)
	if ttlSec <= 0 {
		return "", ErrInvalidTTL
	}
	if c.Subject == "" {
		return "", ErrInvalidSubject
	}
	if len(secret) == 0 {
		return "", ErrInvalidSecret
	}

	c.IssuedAt = now.Unix()
	c.ExpiresAt = c.IssuedAt + ttlSec

	payloadJSON, err := marshalCanonical(c.toMap(e.subjectClaim()))
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	header := EncodeSegment(headerJSON)
	payload := EncodeSegment(payloadJSON)

	sig := Sign(signingInput(header, payload), secret)
	return header + "." + payload + "." + EncodeSegment(sig), nil
}

// Verify authenticates token and validates its claims at instant now.
// The signature is checked before the payload is decoded, so any change to
// the header or payload segment reports InvalidSignature.
func (e *Engine) Verify(token string, secret []byte, now time.Time) (Claims, error) {
	if token == "" {
		return Claims{}, ErrEmptyToken
	}
	if len(secret) == 0 {
		return Claims{}, ErrEmptySecret
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, newError(KindMalformedToken, "token must have 3 segments")
	}
	headerB64, payloadB64, sigB64 := parts[0], parts[1], parts[2]

	sig, err := DecodeSegment(sigB64)
	if err != nil {
		return Claims{}, ErrInvalidSignature
	}
	if !VerifySignature(signingInput(headerB64, payloadB64), secret, sig) {
		return Claims{}, ErrInvalidSignature
	}

	if err := checkHeader(headerB64); err != nil {
		return Claims{}, err
	}
	payloadJSON, err := DecodeSegment(payloadB64)
	if err != nil {
		return Claims{}, newError(KindMalformedToken, "payload is not base64url")
	}
	raw, err := decodeObject(payloadJSON)
	if err != nil {
		return Claims{}, newError(KindMalformedToken, "payload is not a JSON object")
	}

	return Validate(raw, e.subjectClaim(), now.Unix(), int64(e.FutureLeeway/time.Second))
}

func checkHeader(headerB64 string) error {
	b, err := DecodeSegment(headerB64)
	if err != nil {
		return newError(KindMalformedToken, "header is not base64url")
	}
	var h struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(b, &h); err != nil {
		return newError(KindMalformedToken, "header is not a JSON object")
	}
	if h.Alg != algHS256 {
		return newError(KindMalformedToken, "unsupported alg")
	}
	return nil
}

func (e *Engine) subjectClaim() string {
	if e.SubjectClaim == "" {
		return SubjectUserID
	}
	return e.SubjectClaim
}
