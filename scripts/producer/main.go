// Produces sample product events to Kafka for local development. Pairs with
// scripts/receiver to exercise the full pipeline without the main product.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/quillhq/hookrelay/internal/config"
	"github.com/quillhq/hookrelay/internal/domain"
)

func main() {
	config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	count := flag.Int("count", 10, "number of events to produce")
	name := flag.String("event", "documents.publish", "event name")
	teamID := flag.String("team", uuid.NewString(), "team id to scope events to")
	modelID := flag.String("model", uuid.NewString(), "model id carried on each event")
	flag.Parse()

	brokers := strings.Split(config.Get("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := config.Get("KAFKA_TOPIC", "quill.events")

	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	defer func() { _ = writer.Close() }()

	ctx := context.Background()
	actorID := uuid.NewString()

	for i := 0; i < *count; i++ {
		event := domain.Event{
			Name:      *name,
			TeamID:    *teamID,
			ActorID:   actorID,
			ModelID:   *modelID,
			CreatedAt: time.Now().UTC(),
		}
		// Document-family payloads are looked up by documentId.
		if strings.HasPrefix(*name, "documents.") {
			event.DocumentID = *modelID
		}

		value, err := json.Marshal(event)
		if err != nil {
			logger.Error("failed to marshal event", "error", err)
			os.Exit(1)
		}

		// Key by team so one team's events stay on one partition.
		msg := kafka.Message{
			Key:   []byte(event.TeamID),
			Value: value,
		}
		if err := writer.WriteMessages(ctx, msg); err != nil {
			logger.Error("failed to write message", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("events produced",
		"count", *count,
		"event", *name,
		"team_id", *teamID,
		"topic", topic,
	)
}
