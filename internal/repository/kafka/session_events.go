package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NordCoder/Tokengate/internal/domain/session"
)

// SessionEventsKafka publishes session lifecycle events keyed by user id, so
// all events of one user land on the same partition.
type SessionEventsKafka struct {
	p *Producer
}

func NewSessionEventsKafka(p *Producer) *SessionEventsKafka { return &SessionEventsKafka{p: p} }

func (e *SessionEventsKafka) Publish(ctx context.Context, ev session.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	return e.p.Publish(ctx, KeyFromInt64(ev.UserID), value)
}
