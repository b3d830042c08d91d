package obs

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_sign_in_total",
		Help: "Sign-in attempts by outcome.",
	}, []string{"outcome"})

	TokenRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_rejected_total",
		Help: "Inbound tokens rejected, by failure kind.",
	}, []string{"kind"})

	Revocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_session_revocations_total",
		Help: "Session revocations by trigger and whether a row changed.",
	}, []string{"by", "changed"})

	IdentityLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auth_identity_verify_seconds",
		Help:    "Latency of external identity verification.",
		Buckets: prometheus.DefBuckets,
	})
)

func MetricsHandler() http.Handler { return promhttp.Handler() }

// HealthHandler answers 200 while health succeeds within 500ms.
func HealthHandler(health func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := health(ctx); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
