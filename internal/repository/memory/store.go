// Package memory is a process-local storage driver for local runs and tests.
// It keeps the same semantics as the Postgres repositories.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NordCoder/Tokengate/internal/domain/outbox"
	"github.com/NordCoder/Tokengate/internal/domain/session"
	"github.com/NordCoder/Tokengate/internal/domain/user"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = user.ErrConflict
)

type Store struct {
	mu sync.RWMutex

	users      map[int64]*user.User
	bySubject  map[string]int64
	byEmail    map[string]int64
	nextUserID int64

	sessions      map[int64]*session.Session // by user id
	byHash        map[string]int64
	nextSessionID int64

	outbox []outbox.Message

	// txMu serialises WithTx callers; the store itself has no rollback.
	txMu sync.Mutex
}

func NewStore() *Store {
	return &Store{
		users:     make(map[int64]*user.User),
		bySubject: make(map[string]int64),
		byEmail:   make(map[string]int64),
		sessions:  make(map[int64]*session.Session),
		byHash:    make(map[string]int64),
	}
}

type Transactor struct{ s *Store }

func NewTransactor(s *Store) *Transactor { return &Transactor{s: s} }

type txKey struct{}

func (t *Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, struct{}{}))
}

func cloneUser(u *user.User) *user.User {
	cp := *u
	if u.Name != nil {
		n := *u.Name
		cp.Name = &n
	}
	return &cp
}

func cloneSession(s *session.Session) *session.Session {
	cp := *s
	return &cp
}

func (s *Store) Ping(context.Context) error { return nil }

func utc(t time.Time) time.Time { return t.UTC() }
