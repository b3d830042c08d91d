package main

import (
	"context"

	config "github.com/NordCoder/Tokengate/internal/config/api-gateway"
	domainoutbox "github.com/NordCoder/Tokengate/internal/domain/outbox"
	"github.com/NordCoder/Tokengate/internal/obs/retry"
	"github.com/NordCoder/Tokengate/internal/outbox"
	"github.com/NordCoder/Tokengate/internal/repository/kafka"
	"go.uber.org/zap"
)

type events struct {
	runner   *outbox.Runner
	producer *kafka.Producer
}

func (e *events) Close() {
	if e.producer != nil {
		_ = e.producer.Close()
	}
}

// sessionOutbox returns the repository sign-ins record events into, or nil
// when no runner relays it.
func (e *events) sessionOutbox(st *storage) domainoutbox.Repository {
	if e == nil || e.runner == nil {
		return nil
	}
	return st.outbox
}

// initEvents wires the outbox relay to Kafka. It returns nil when Kafka is
// disabled, in which case sign-ins record no session events.
func initEvents(ctx context.Context, cfg *config.Config, st *storage, logger *zap.Logger) (*events, error) {
	if !cfg.Kafka.Enable {
		return nil, nil
	}
	err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, kafka.TopicSpec{
		Name:          cfg.Kafka.Topic,
		NumPartitions: cfg.Kafka.Partitions,
	}, logger)
	if err != nil {
		return nil, err
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic).WithLogger(logger)
	dispatch := outbox.MakeGlobalOutboxHandler(kafka.NewSessionEventsKafka(producer), retry.PublishPolicy(logger))

	ev := &events{producer: producer}
	if cfg.Outbox.Enable {
		ev.runner = outbox.NewOutboxRunner(logger.Named("outbox"), st.outbox, dispatch, cfg.Outbox)
	}
	return ev, nil
}
