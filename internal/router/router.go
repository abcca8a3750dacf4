// Package router matches domain events against a team's enabled
// subscriptions and schedules one delivery task per match.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quillhq/hookrelay/internal/domain"
	"github.com/quillhq/hookrelay/internal/observability"
	"github.com/quillhq/hookrelay/internal/queue"
)

// SubscriptionFinder is the slice of the subscription store the router needs.
type SubscriptionFinder interface {
	FindEnabledByTeam(ctx context.Context, teamID string) ([]*domain.Subscription, error)
}

// Deliverer executes one delivery task for one (subscription, event) pair.
type Deliverer interface {
	Deliver(ctx context.Context, subscriptionID string, event *domain.Event) error
}

type Router struct {
	subs      SubscriptionFinder
	deliverer Deliverer
	queue     *queue.Queue
	logger    *slog.Logger
	metrics   *observability.Metrics
}

func New(subs SubscriptionFinder, deliverer Deliverer, q *queue.Queue, logger *slog.Logger, metrics *observability.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		subs:      subs,
		deliverer: deliverer,
		queue:     q,
		logger:    logger,
		metrics:   metrics,
	}
}

// Route fans one event out to delivery tasks. Events without a team scope
// are process-internal and ignored. Scheduling is fire-and-forget and
// unordered across subscriptions; task errors are logged, never returned,
// because one destination's failure must not affect another's delivery.
func (r *Router) Route(ctx context.Context, event *domain.Event) error {
	if event.TeamID == "" {
		if r.metrics != nil {
			r.metrics.EventsIgnored.Inc()
		}
		return nil
	}
	if r.metrics != nil {
		r.metrics.EventsRouted.Inc()
	}

	subs, err := r.subs.FindEnabledByTeam(ctx, event.TeamID)
	if err != nil {
		return fmt.Errorf("find subscriptions for team %s: %w", event.TeamID, err)
	}

	for _, sub := range subs {
		if !sub.Matches(event.Name) {
			continue
		}

		subscriptionID := sub.ID
		scheduled := r.queue.Enqueue(func(taskCtx context.Context) {
			if err := r.deliverer.Deliver(taskCtx, subscriptionID, event); err != nil {
				r.logger.Error("delivery task failed",
					"subscription_id", subscriptionID,
					"event", event.Name,
					"error", err,
				)
			}
		})
		if !scheduled {
			r.logger.Warn("queue stopped, delivery not scheduled",
				"subscription_id", subscriptionID,
				"event", event.Name,
			)
			continue
		}
		if r.metrics != nil {
			r.metrics.DeliveriesScheduled.Inc()
		}
	}
	return nil
}
