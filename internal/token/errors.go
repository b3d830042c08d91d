package token

import (
	"errors"
	"fmt"
)

// Kind classifies token failures so callers can branch without parsing messages.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindDecode
	KindMalformedToken
	KindInvalidSignature
	KindMissingClaim
	KindMalformedClaim
	KindExpired
	KindClockSkew
	KindEmptyToken
	KindEmptySecret
	KindInvalidTTL
	KindInvalidSubject
	KindInvalidSecret
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindDecode:           "decode_error",
	KindMalformedToken:   "malformed_token",
	KindInvalidSignature: "invalid_signature",
	KindMissingClaim:     "missing_claim",
	KindMalformedClaim:   "malformed_claim",
	KindExpired:          "expired",
	KindClockSkew:        "clock_skew",
	KindEmptyToken:       "empty_token",
	KindEmptySecret:      "empty_secret",
	KindInvalidTTL:       "invalid_ttl",
	KindInvalidSubject:   "invalid_subject",
	KindInvalidSecret:    "invalid_secret",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the single error type produced by this package.
// Claim is set only for MissingClaim and MalformedClaim.
type Error struct {
	Kind  Kind
	Claim string
	Msg   string
}

func (e *Error) Error() string {
	if e.Claim != "" {
		return fmt.Sprintf("%s: %s", e.Msg, e.Claim)
	}
	return e.Msg
}

// Is matches on Kind, so errors.Is(err, ErrExpired) holds for every expiry cause.
// A target carrying a Claim additionally requires the same claim name.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Claim == "" || t.Claim == e.Claim
}

var (
	ErrDecode           = &Error{Kind: KindDecode, Msg: "invalid base64url segment"}
	ErrMalformedToken   = &Error{Kind: KindMalformedToken, Msg: "invalid token"}
	ErrInvalidSignature = &Error{Kind: KindInvalidSignature, Msg: "invalid signature"}
	ErrMissingClaim     = &Error{Kind: KindMissingClaim, Msg: "missing claim"}
	ErrMalformedClaim   = &Error{Kind: KindMalformedClaim, Msg: "malformed claim"}
	ErrExpired          = &Error{Kind: KindExpired, Msg: "token expired"}
	ErrClockSkew        = &Error{Kind: KindClockSkew, Msg: "token issued in the future"}
	ErrEmptyToken       = &Error{Kind: KindEmptyToken, Msg: "token is empty"}
	ErrEmptySecret      = &Error{Kind: KindEmptySecret, Msg: "secret is empty"}
	ErrInvalidTTL       = &Error{Kind: KindInvalidTTL, Msg: "ttl must be > 0"}
	ErrInvalidSubject   = &Error{Kind: KindInvalidSubject, Msg: "subject is empty"}
	ErrInvalidSecret    = &Error{Kind: KindInvalidSecret, Msg: "signing secret is empty"}
)

func newError(k Kind, msg string) *Error { return &Error{Kind: k, Msg: msg} }

func claimError(k Kind, msg, claim string) *Error {
	return &Error{Kind: k, Msg: msg, Claim: claim}
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}
