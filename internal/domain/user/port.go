package user

import (
	"context"
	"errors"
	"time"
)

// Repo persists users. Lookups return (nil, nil) when nothing matches.
type Repo interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	FindBySubjectID(ctx context.Context, subjectID string) (*User, error)
	UpdateLastLogin(ctx context.Context, id int64, deviceID string, at time.Time) error
}

// ErrConflict is returned by Create when the subject or email is already taken.
var ErrConflict = errors.New("user already exists")
