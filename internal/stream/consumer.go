// Package stream consumes product events from Kafka and hands them to the
// router. Offsets are committed only after routing. Commits are positional:
// marking offset N consumed implies every earlier offset on the partition, so
// a message that fails to route is retried in place rather than fetched past,
// otherwise committing its successor would silently drop it. Downstream
// accepts the resulting at-least-once semantics.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/quillhq/hookrelay/internal/domain"
)

// ConsumerConfig defines Kafka consumer parameters.
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	GroupID       string
	CommitTimeout time.Duration
	// RouteRetryDelay is the pause between routing attempts for a message
	// that failed to route, typically during a store outage.
	RouteRetryDelay time.Duration
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Topic:           "quill.events",
		GroupID:         "hookrelay",
		CommitTimeout:   5 * time.Second,
		RouteRetryDelay: time.Second,
	}
}

// Router schedules webhook deliveries for one event.
type Router interface {
	Route(ctx context.Context, event *domain.Event) error
}

// fetcher is the slice of kafka.Reader the consumer uses, extracted so tests
// can feed messages without a broker.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads events and routes them one at a time.
type Consumer struct {
	config ConsumerConfig
	reader fetcher
	router Router
	logger *slog.Logger

	wg       sync.WaitGroup
	shutdown chan struct{}
}

func NewConsumer(config ConsumerConfig, router Router, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commits only
		StartOffset:    kafka.LastOffset,
	})
	return newConsumer(config, reader, router, logger)
}

func newConsumer(config ConsumerConfig, reader fetcher, router Router, logger *slog.Logger) *Consumer {
	if config.RouteRetryDelay == 0 {
		config.RouteRetryDelay = DefaultConsumerConfig().RouteRetryDelay
	}
	return &Consumer{
		config:   config,
		reader:   reader,
		router:   router,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
}

// Start begins consuming messages.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.consumeLoop(ctx)
	c.logger.Info("event consumer started",
		"topic", c.config.Topic,
		"group", c.config.GroupID,
	)
}

// Stop gracefully shuts down the consumer.
func (c *Consumer) Stop() {
	close(c.shutdown)
	c.wg.Wait()
	if err := c.reader.Close(); err != nil {
		c.logger.Error("failed to close kafka reader", "error", err)
	}
	c.logger.Info("event consumer stopped")
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.logger.Error("failed to fetch message", "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		c.handleMessage(ctx, msg)
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) {
	var event domain.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Error("failed to unmarshal event",
			"error", err,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		// Commit the bad message so it does not wedge the partition.
		c.commit(ctx, msg)
		return
	}

	// Retry the same message until it routes. Fetching past it would let the
	// next commit mark this offset consumed, dropping the event for good; a
	// restart or rebalance mid-retry redelivers from the last commit instead.
	for {
		err := c.router.Route(ctx, &event)
		if err == nil {
			c.commit(ctx, msg)
			return
		}

		c.logger.Error("failed to route event, retrying",
			"error", err,
			"event", event.Name,
			"team_id", event.TeamID,
			"offset", msg.Offset,
		)

		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-time.After(c.config.RouteRetryDelay):
		}
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	commitCtx, cancel := context.WithTimeout(ctx, c.config.CommitTimeout)
	defer cancel()

	if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
		c.logger.Error("failed to commit offset",
			"error", err,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
	}
}
