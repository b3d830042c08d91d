package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type TopicSpec struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	// MaxWait bounds how long EnsureTopic waits for every partition to get a leader.
	MaxWait time.Duration
}

// EnsureTopic creates the topic through the controller if it does not exist
// and waits until all of its partitions have a leader.
func EnsureTopic(ctx context.Context, brokers []string, spec TopicSpec, log *zap.Logger) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if spec.NumPartitions <= 0 {
		spec.NumPartitions = 1
	}
	if spec.ReplicationFactor <= 0 {
		spec.ReplicationFactor = 1
	}
	if spec.MaxWait <= 0 {
		spec.MaxWait = 5 * time.Second
	}
	log = log.With(zap.String("topic", spec.Name))

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("kafka dial %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller: %w", err)
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka dial controller: %w", err)
	}
	defer cc.Close()

	err = cc.CreateTopics(kafka.TopicConfig{
		Topic:             spec.Name,
		NumPartitions:     spec.NumPartitions,
		ReplicationFactor: spec.ReplicationFactor,
	})
	switch {
	case errors.Is(err, kafka.TopicAlreadyExists):
		log.Debug("topic already exists")
	case err != nil:
		return fmt.Errorf("create topic %s: %w", spec.Name, err)
	}

	wait := 200 * time.Millisecond
	deadline := time.Now().Add(spec.MaxWait)
	for time.Now().Before(deadline) {
		ps, err := conn.ReadPartitions(spec.Name)
		if err == nil && len(ps) > 0 && allHaveLeader(ps) {
			log.Info("topic ready", zap.Int("partitions", len(ps)))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if wait < time.Second {
			wait *= 2
		}
	}
	return fmt.Errorf("topic %s not ready after %s", spec.Name, spec.MaxWait)
}

func allHaveLeader(ps []kafka.Partition) bool {
	for _, p := range ps {
		if p.Leader.ID == -1 {
			return false
		}
	}
	return true
}
