package memory

import (
	"context"
	"time"

	"github.com/NordCoder/Tokengate/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct{ s *Store }

func NewUserRepo(s *Store) *UserRepo { return &UserRepo{s: s} }

func (r *UserRepo) Create(_ context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.bySubject[u.SubjectID]; ok {
		return ErrConflict
	}
	if _, ok := r.s.byEmail[u.Email]; ok {
		return ErrConflict
	}
	if u.LastLogin.IsZero() {
		u.LastLogin = time.Now()
	}
	r.s.nextUserID++
	u.ID = r.s.nextUserID
	u.LastLogin = utc(u.LastLogin)
	u.CreatedAt = u.LastLogin

	r.s.users[u.ID] = cloneUser(u)
	r.s.bySubject[u.SubjectID] = u.ID
	r.s.byEmail[u.Email] = u.ID
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id int64) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (r *UserRepo) FindBySubjectID(_ context.Context, subjectID string) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.bySubject[subjectID]
	if !ok {
		return nil, nil
	}
	return cloneUser(r.s.users[id]), nil
}

func (r *UserRepo) UpdateLastLogin(_ context.Context, id int64, deviceID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.DeviceID = deviceID
	u.LastLogin = utc(at)
	return nil
}
