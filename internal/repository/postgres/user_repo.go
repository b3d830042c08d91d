package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Tokengate/internal/domain/user"
	"github.com/jackc/pgx/v5"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const (
	qUserInsert = `
INSERT INTO users (subject_id, device_id, email, name, last_login, created_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT DO NOTHING
RETURNING id, created_at;`

	qUserByID = `
SELECT id, subject_id, device_id, email, name, last_login, created_at
FROM users
WHERE id = $1;`

	qUserBySubject = `
SELECT id, subject_id, device_id, email, name, last_login, created_at
FROM users
WHERE subject_id = $1;`

	qUserTouch = `
UPDATE users
SET device_id  = $2,
    last_login = $3
WHERE id = $1;`
)

// Create inserts u and fills its ID. A taken subject or email yields
// ErrConflict without aborting the surrounding transaction.
func (r *UserRepo) Create(ctx context.Context, u *user.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if u.LastLogin.IsZero() {
		u.LastLogin = time.Now().UTC()
	}
	err := r.db.execQueryer(ctx).
		QueryRow(ctx, qUserInsert, u.SubjectID, u.DeviceID, u.Email, u.Name, u.LastLogin).
		Scan(&u.ID, &u.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows), isUniqueViolation(err):
		return fmt.Errorf("%w: %w", ErrConflict, user.ErrConflict)
	case err != nil:
		return fmt.Errorf("user insert: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserByID, id))
}

func (r *UserRepo) FindBySubjectID(ctx context.Context, subjectID string) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserBySubject, subjectID))
}

func (r *UserRepo) UpdateLastLogin(ctx context.Context, id int64, deviceID string, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qUserTouch, id, deviceID, at)
	if err != nil {
		return fmt.Errorf("user touch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.SubjectID, &u.DeviceID, &u.Email, &u.Name, &u.LastLogin, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.LastLogin = u.LastLogin.UTC()
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
