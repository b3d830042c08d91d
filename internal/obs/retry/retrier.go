package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Backoff interface {
	Next(attempt int) time.Duration
}

// ExpoJitter doubles Base per attempt up to Max. Jitter spreads each wait by
// up to ±Jitter of its value.
type ExpoJitter struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func (b ExpoJitter) Next(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt && d <= math.MaxInt64/2; i++ {
		if b.Max > 0 && d >= b.Max {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		d = time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*b.Jitter))
	}
	return d
}

type Policy struct {
	Name     string
	Attempts int
	Backoff  Backoff
	// Retryable defaults to retrying every error.
	Retryable func(error) bool
	OnAttempt func(attempt int, err error)
	// OnExhaust runs once when Do gives up, whether attempts ran out or the
	// error was not retryable.
	OnExhaust func(lastErr error)
}

func (p Policy) name() string {
	if p.Name == "" {
		return "default"
	}
	return p.Name
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p Policy) wait(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff.Next(attempt)
}

const (
	outcomeOK       = "ok"
	outcomeGaveUp   = "gave_up"
	outcomeCanceled = "canceled"
)

var (
	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_attempts_total",
		Help: "Calls made inside retry.Do, first try included.",
	}, []string{"name"})
	retryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retry_duration_seconds",
		Help:    "Wall time of retry.Do by final outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name", "outcome"})
)

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. The last error from fn is returned, or ctx.Err()
// when cancellation interrupted a backoff wait.
func Do(ctx context.Context, fn func() error, p Policy) error {
	name := p.name()
	attempts := max(p.Attempts, 1)
	span := trace.SpanFromContext(ctx)

	start := time.Now()
	outcome := outcomeGaveUp
	defer func() {
		retryDuration.WithLabelValues(name, outcome).Observe(time.Since(start).Seconds())
	}()

	var err error
	for i := range attempts {
		retryAttempts.WithLabelValues(name).Inc()
		if err = fn(); err == nil {
			outcome = outcomeOK
			return nil
		}
		if p.OnAttempt != nil {
			p.OnAttempt(i, err)
		}
		if span.IsRecording() {
			span.AddEvent("retry.attempt", trace.WithAttributes(
				attribute.String("retry.name", name),
				attribute.Int("retry.attempt", i+1),
				attribute.String("retry.error", err.Error()),
			))
		}
		if !p.retryable(err) || i == attempts-1 {
			break
		}

		t := time.NewTimer(p.wait(i))
		select {
		case <-ctx.Done():
			t.Stop()
			outcome = outcomeCanceled
			return ctx.Err()
		case <-t.C:
		}
	}

	if p.OnExhaust != nil {
		p.OnExhaust(err)
	}
	return err
}
