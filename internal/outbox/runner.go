package outbox

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/NordCoder/Tokengate/internal/domain/outbox"
	"github.com/NordCoder/Tokengate/internal/obs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	mPicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_picked_total", Help: "Messages picked into processing.",
	})
	mOk = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_processed_ok_total", Help: "Messages processed successfully.",
	})
	mErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_processed_err_total", Help: "Handler errors.",
	})
	mTickDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "outbox_tick_duration_seconds", Help: "Tick duration.",
		Buckets: prometheus.DefBuckets,
	})
	mBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_last_batch_size", Help: "Size of last picked batch.",
	})
)

type Config struct {
	Enable        bool          `mapstructure:"enable"`
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	WaitTime      time.Duration `mapstructure:"wait_time"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
}

type Runner struct {
	log      *zap.Logger
	repo     outbox.Repository
	dispatch outbox.GlobalHandler

	workers       int
	batchSize     int
	waitTime      time.Duration
	inProgressTTL time.Duration
}

func NewOutboxRunner(
	log *zap.Logger,
	repo outbox.Repository,
	dispatch outbox.GlobalHandler,
	cfg Config,
) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = time.Second
	}
	return &Runner{
		log: log, repo: repo, dispatch: dispatch,
		workers: cfg.Workers, batchSize: cfg.BatchSize, waitTime: cfg.WaitTime, inProgressTTL: cfg.InProgressTTL,
	}
}

// Run blocks until ctx is done and every worker has returned.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go r.worker(ctx, &wg)
	}
	wg.Wait()
}

func (r *Runner) worker(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	r.log.Info("outbox worker started", zap.String("wait_ms", strconv.FormatInt(r.waitTime.Milliseconds(), 10)))

	ticker := time.NewTicker(r.waitTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox worker stop")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	t0 := time.Now()
	tr := otel.Tracer("outbox.runner")
	prop := otel.GetTextMapPropagator()

	ctxSpan, span := tr.Start(ctx, "outbox.tick")
	defer span.End()
	span.SetAttributes(
		attribute.Int("batch.limit", r.batchSize),
		attribute.String("in_progress_ttl", r.inProgressTTL.String()),
	)

	messages, err := r.repo.PickBatch(ctxSpan, r.batchSize, r.inProgressTTL)
	if err != nil {
		span.RecordError(err)
		mErr.Inc()
		obs.WithTrace(ctxSpan, r.log).Error("outbox pick error", zap.Error(err))
		return
	}
	mPicked.Add(float64(len(messages)))
	mBatchSize.Set(float64(len(messages)))

	okKeys := make([]string, 0, len(messages))

	for _, m := range messages {
		parent := prop.Extract(ctx, propagation.MapCarrier{
			"traceparent": m.Traceparent,
			"tracestate":  m.Tracestate,
			"baggage":     m.Baggage,
		})

		msgCtx, msgSpan := tr.Start(parent, "outbox.dispatch",
			trace.WithAttributes(
				attribute.String("outbox.key", m.IdempotencyKey),
				attribute.Int("outbox.kind", int(m.Kind)),
			),
		)

		handler, herr := r.dispatch(m.Kind)
		if herr != nil {
			msgSpan.RecordError(herr)
			mErr.Inc()
			obs.WithTrace(msgCtx, r.log).Error("no handler for kind",
				zap.Int("kind", int(m.Kind)), zap.Error(herr))
			msgSpan.End()
			continue
		}

		if err := handler(msgCtx, m.Data); err != nil {
			msgSpan.RecordError(err)
			mErr.Inc()
			obs.WithTrace(msgCtx, r.log).Error("handler error",
				zap.Int("kind", int(m.Kind)), zap.Error(err))
			msgSpan.End()
			continue
		}

		msgSpan.End()
		okKeys = append(okKeys, m.IdempotencyKey)
		mOk.Inc()
	}

	if err := r.repo.MarkSuccess(ctxSpan, okKeys); err != nil {
		span.RecordError(err)
		mErr.Inc()
		obs.WithTrace(ctxSpan, r.log).Error("mark success error", zap.Error(err))
	}
	mTickDur.Observe(time.Since(t0).Seconds())
}
