package memory

import (
	"context"
	"time"

	"github.com/NordCoder/Tokengate/internal/domain/session"
)

var _ session.Repo = (*SessionRepo)(nil)

type SessionRepo struct{ s *Store }

func NewSessionRepo(s *Store) *SessionRepo { return &SessionRepo{s: s} }

func (r *SessionRepo) Upsert(_ context.Context, userID int64, deviceInfo, tokenHash string, expiresAt, now time.Time) (*session.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.sessions[userID]
	if !ok {
		r.s.nextSessionID++
		cur = &session.Session{
			ID:        r.s.nextSessionID,
			UserID:    userID,
			CreatedAt: utc(now),
		}
		r.s.sessions[userID] = cur
	} else {
		delete(r.s.byHash, cur.TokenHash)
	}
	cur.TokenHash = tokenHash
	cur.DeviceInfo = deviceInfo
	cur.ExpiresAt = utc(expiresAt)
	cur.Revoked = false
	r.s.byHash[tokenHash] = userID

	return cloneSession(cur), nil
}

func (r *SessionRepo) FindByUserID(_ context.Context, userID int64) (*session.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if s, ok := r.s.sessions[userID]; ok {
		return cloneSession(s), nil
	}
	return nil, nil
}

func (r *SessionRepo) FindByTokenHash(_ context.Context, tokenHash string) (*session.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if uid, ok := r.s.byHash[tokenHash]; ok {
		return cloneSession(r.s.sessions[uid]), nil
	}
	return nil, nil
}

func (r *SessionRepo) RevokeByUserID(_ context.Context, userID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	s, ok := r.s.sessions[userID]
	if !ok {
		return false, nil
	}
	s.Revoked = true
	return true, nil
}

func (r *SessionRepo) RevokeByTokenHash(_ context.Context, tokenHash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	uid, ok := r.s.byHash[tokenHash]
	if !ok {
		return false, nil
	}
	s := r.s.sessions[uid]
	if s.Revoked {
		return false, nil
	}
	s.Revoked = true
	return true, nil
}
