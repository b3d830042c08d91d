package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NordCoder/Tokengate/internal/domain/outbox"
	"github.com/NordCoder/Tokengate/internal/domain/session"
	"github.com/NordCoder/Tokengate/internal/obs/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

type SessionPublisher interface {
	Publish(ctx context.Context, ev session.Event) error
}

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
)

func instrument(kind string, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + kind
	}
	return func(ctx context.Context, data []byte) error {
		ctx, span := tr.Start(ctx, "outbox.handle")
		defer span.End()

		start := time.Now()
		err := retry.Do(ctx, func() error { return h(ctx, data) }, pol)
		outboxHandlerLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			outboxHandlerErrors.WithLabelValues(kind).Inc()
		}
		return err
	}
}

// EncodeSessionEvent is the payload format stored for both session kinds.
func EncodeSessionEvent(ev session.Event) (outbox.Kind, []byte, error) {
	var kind outbox.Kind
	switch ev.Type {
	case session.EventLogin:
		kind = outbox.KindSessionLogin
	case session.EventLogout:
		kind = outbox.KindSessionLogout
	default:
		return 0, nil, fmt.Errorf("unsupported session event %q", ev.Type)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal session event: %w", err)
	}
	return kind, data, nil
}

func MakeGlobalOutboxHandler(pub SessionPublisher, pol retry.Policy) outbox.GlobalHandler {
	publish := func(ctx context.Context, data []byte) error {
		var ev session.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("unmarshal session event: %w", err)
		}
		return pub.Publish(ctx, ev)
	}
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		switch kind {
		case outbox.KindSessionLogin:
			return instrument("session_login", publish, pol), nil
		case outbox.KindSessionLogout:
			return instrument("session_logout", publish, pol), nil
		default:
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
	}
}
