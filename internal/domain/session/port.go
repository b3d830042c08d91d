package session

import (
	"context"
	"time"
)

type Repo interface {
	FindByUserID(ctx context.Context, userID int64) (*Session, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	// Upsert creates the user's session or overwrites it in place, clearing Revoked.
	Upsert(ctx context.Context, userID int64, deviceInfo, tokenHash string, expiresAt, now time.Time) (*Session, error)
	RevokeByUserID(ctx context.Context, userID int64) (bool, error)
	// RevokeByTokenHash reports true only if an active session was flipped to revoked.
	RevokeByTokenHash(ctx context.Context, tokenHash string) (bool, error)
}
