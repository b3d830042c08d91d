package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/NordCoder/Tokengate/internal/obs"
	"github.com/NordCoder/Tokengate/internal/repository/kafka"
	"go.uber.org/zap"
)

// kafka-init creates the session event topics before the gateway starts
// publishing, so partition counts are not left to broker auto-creation.
func main() {
	logger, err := obs.NewLogger(obs.LogConfig{Level: env("LOG_LEVEL", "info"), App: "tokengate/kafka-init"})
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	brokers := strings.Split(env("KAFKA_BROKERS", "kafka:9092"), ",")
	topics := strings.Split(env("KAFKA_TOPICS", "session-events"), ",")
	spec := kafka.TopicSpec{
		NumPartitions:     envInt("KAFKA_PARTITIONS", 3),
		ReplicationFactor: envInt("KAFKA_RF", 1),
		MaxWait:           30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		spec.Name = t
		if err := kafka.EnsureTopic(ctx, brokers, spec, logger); err != nil {
			logger.Fatal("ensure topic", zap.String("topic", t), zap.Error(err))
		}
	}
	logger.Info("kafka-init ok", zap.Strings("topics", topics))
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, _ := strconv.Atoi(v); n > 0 {
			return n
		}
	}
	return def
}
