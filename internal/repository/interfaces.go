package repository

import (
	"context"
	"time"

	"github.com/quillhq/hookrelay/internal/domain"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	ListByTeam(ctx context.Context, teamID string) ([]*domain.Subscription, error)
	FindEnabledByTeam(ctx context.Context, teamID string) ([]*domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription) error
	// Disable flips enabled to false. The circuit breaker is the only caller
	// besides the management API; nothing re-enables automatically.
	Disable(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.Delivery) error
	// Finalize writes the terminal status, status code, and the exact
	// request/response bytes and headers. Called exactly once per delivery.
	Finalize(ctx context.Context, d *domain.Delivery) error
	RecentBySubscription(ctx context.Context, subscriptionID string, limit int) ([]*domain.Delivery, error)
	// DeleteOlderThan hard-deletes rows created before cutoff and returns the
	// number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
