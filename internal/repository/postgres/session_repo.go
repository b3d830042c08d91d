package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Tokengate/internal/domain/session"
	"github.com/jackc/pgx/v5"
)

var _ session.Repo = (*SessionRepo)(nil)

type SessionRepo struct{ db *DB }

func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

const (
	sessionCols = `id, user_id, token_hash, device_info, expires_at, created_at, revoked`

	qSessionUpsert = `
INSERT INTO sessions (user_id, token_hash, device_info, expires_at, created_at, revoked)
VALUES ($1, $2, $3, $4, $5, FALSE)
ON CONFLICT (user_id) DO UPDATE
SET token_hash  = EXCLUDED.token_hash,
    device_info = EXCLUDED.device_info,
    expires_at  = EXCLUDED.expires_at,
    revoked     = FALSE
RETURNING ` + sessionCols + `;`

	qSessionByUser = `
SELECT ` + sessionCols + `
FROM sessions
WHERE user_id = $1;`

	qSessionByHash = `
SELECT ` + sessionCols + `
FROM sessions
WHERE token_hash = $1;`

	qSessionRevokeByUser = `
UPDATE sessions SET revoked = TRUE WHERE user_id = $1;`

	qSessionRevokeByHash = `
UPDATE sessions SET revoked = TRUE WHERE token_hash = $1 AND revoked = FALSE;`
)

func (r *SessionRepo) Upsert(ctx context.Context, userID int64, deviceInfo, tokenHash string, expiresAt, now time.Time) (*session.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	s, err := scanSession(r.db.execQueryer(ctx).
		QueryRow(ctx, qSessionUpsert, userID, tokenHash, deviceInfo, expiresAt.UTC(), now.UTC()))
	if err != nil {
		return nil, fmt.Errorf("session upsert: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("session upsert: %w", ErrNotFound)
	}
	return s, nil
}

func (r *SessionRepo) FindByUserID(ctx context.Context, userID int64) (*session.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanSession(r.db.execQueryer(ctx).QueryRow(ctx, qSessionByUser, userID))
}

func (r *SessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*session.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanSession(r.db.execQueryer(ctx).QueryRow(ctx, qSessionByHash, tokenHash))
}

func (r *SessionRepo) RevokeByUserID(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qSessionRevokeByUser, userID)
	if err != nil {
		return false, fmt.Errorf("session revoke by user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SessionRepo) RevokeByTokenHash(ctx context.Context, tokenHash string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qSessionRevokeByHash, tokenHash)
	if err != nil {
		return false, fmt.Errorf("session revoke by hash: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.DeviceInfo, &s.ExpiresAt, &s.CreatedAt, &s.Revoked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}
