package session

import "time"

// Session is the server-side record behind an issued token. There is at most
// one per user.
type Session struct {
	ID         int64
	UserID     int64
	TokenHash  string
	DeviceInfo string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	Revoked    bool
}

// Active reports whether the session may still back a request at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && !s.Revoked && now.Before(s.ExpiresAt)
}

type EventType string

const (
	EventLogin  EventType = "session.login"
	EventLogout EventType = "session.logout"
)

// Event is published to the session topic through the outbox.
type Event struct {
	Type     EventType `json:"type"`
	UserID   int64     `json:"user_id"`
	DeviceID string    `json:"device_id,omitempty"`
	At       time.Time `json:"at"`
}
