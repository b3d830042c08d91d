package token

import (
	"encoding/json"
	"math"
)

// Validate checks a decoded payload at instant now (unix seconds).
//
// Required claims are looked up in the order subject, iat, exp and the first
// missing one is reported. leeway is the tolerated future skew of iat in
// seconds; zero disables that check. Expiry is always enforced here.
func Validate(raw map[string]any, subjectClaim string, now, leeway int64) (Claims, error) {
	for _, name := range []string{subjectClaim, ClaimIssuedAt, ClaimExpiresAt} {
		if _, ok := raw[name]; !ok {
			return Claims{}, claimError(KindMissingClaim, "missing claim", name)
		}
	}

	sub, ok := raw[subjectClaim].(string)
	if !ok || sub == "" {
		return Claims{}, claimError(KindMalformedClaim, "subject must be a non-empty string", subjectClaim)
	}
	iat, ok := asInt64(raw[ClaimIssuedAt])
	if !ok {
		return Claims{}, claimError(KindMalformedClaim, "claim must be an integer", ClaimIssuedAt)
	}
	exp, ok := asInt64(raw[ClaimExpiresAt])
	if !ok {
		return Claims{}, claimError(KindMalformedClaim, "claim must be an integer", ClaimExpiresAt)
	}

	if exp <= iat {
		return Claims{}, newError(KindExpired, "exp must be greater than iat")
	}
	if leeway > 0 && iat > now+leeway {
		return Claims{}, ErrClockSkew
	}
	if now >= exp {
		return Claims{}, ErrExpired
	}

	c := Claims{Subject: sub, IssuedAt: iat, ExpiresAt: exp}
	for k, v := range raw {
		if k == subjectClaim || k == ClaimIssuedAt || k == ClaimExpiresAt {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[k] = v
	}
	return c, nil
}

// asInt64 accepts JSON numbers with no fractional part that fit in int64.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case float64:
		return floatToInt64(n)
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
