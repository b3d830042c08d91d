package token

const (
	ClaimIssuedAt  = "iat"
	ClaimExpiresAt = "exp"

	SubjectUserID   = "userId"
	SubjectDeviceID = "deviceId"
)

// Claims is the decoded payload. The three required claims are typed; anything
// else the token carries ends up in Extra.
type Claims struct {
	Subject   string
	IssuedAt  int64
	ExpiresAt int64
	Extra     map[string]any
}

// TTL is the width of the validity window in seconds.
func (c Claims) TTL() int64 { return c.ExpiresAt - c.IssuedAt }

// toMap flattens the claims under the given subject claim name. Reserved names
// in Extra are overwritten by the typed fields.
func (c Claims) toMap(subjectClaim string) map[string]any {
	m := make(map[string]any, len(c.Extra)+3)
	for k, v := range c.Extra {
		m[k] = v
	}
	m[subjectClaim] = c.Subject
	m[ClaimIssuedAt] = c.IssuedAt
	m[ClaimExpiresAt] = c.ExpiresAt
	return m
}
