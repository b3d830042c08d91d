package memory

import (
	"context"
	"errors"
	"time"

	"github.com/NordCoder/Tokengate/internal/domain/outbox"
)

var _ outbox.Repository = (*OutboxRepo)(nil)

// OutboxRepo keeps messages in memory; the relay drains it like the SQL table.
type OutboxRepo struct{ s *Store }

func NewOutboxRepo(s *Store) *OutboxRepo { return &OutboxRepo{s: s} }

func (r *OutboxRepo) Enqueue(_ context.Context, key string, kind outbox.Kind, data []byte) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, m := range r.s.outbox {
		if m.IdempotencyKey == key {
			return nil
		}
	}
	now := time.Now().UTC()
	r.s.outbox = append(r.s.outbox, outbox.Message{
		IdempotencyKey: key,
		Kind:           kind,
		Data:           append([]byte(nil), data...),
		Status:         outbox.StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	return nil
}

func (r *OutboxRepo) PickBatch(_ context.Context, batch int, inProgressTTL time.Duration) ([]outbox.Message, error) {
	if batch <= 0 {
		return nil, errors.New("batch must be > 0")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	var out []outbox.Message
	for i := range r.s.outbox {
		if len(out) == batch {
			break
		}
		m := &r.s.outbox[i]
		stale := m.Status == outbox.StatusInProgress && m.UpdatedAt.Before(now.Add(-inProgressTTL))
		if m.Status != outbox.StatusCreated && !stale {
			continue
		}
		m.Status = outbox.StatusInProgress
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (r *OutboxRepo) MarkSuccess(_ context.Context, keys []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	now := time.Now().UTC()
	for i := range r.s.outbox {
		if _, ok := set[r.s.outbox[i].IdempotencyKey]; ok {
			r.s.outbox[i].Status = outbox.StatusSuccess
			r.s.outbox[i].UpdatedAt = now
		}
	}
	return nil
}

// Pending counts messages not yet marked successful.
func (r *OutboxRepo) Pending() int {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, m := range r.s.outbox {
		if m.Status != outbox.StatusSuccess {
			n++
		}
	}
	return n
}
