package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// PublishPolicy is used by the outbox relay when writing session events to Kafka.
func PublishPolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "session_events_publish",
		Attempts: 6,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("outbox retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("outbox retries exhausted", zap.Error(err))
			}
		},
	}
}

// IdentityPolicy retries only errors matched by transient, with a short
// budget so sign-in latency stays bounded.
func IdentityPolicy(transient func(error) bool) Policy {
	return Policy{
		Name:      "identity_verify",
		Attempts:  3,
		Backoff:   ExpoJitter{Base: 50 * time.Millisecond, Max: 400 * time.Millisecond, Jitter: 0.2},
		Retryable: transient,
	}
}
