// Package postgres implements the repository interfaces over pgx.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillhq/hookrelay/internal/domain"
)

type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

const subscriptionColumns = `id, team_id, name, url, COALESCE(secret, ''), events, enabled, created_by_id, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.TeamID,
		&sub.Name,
		&sub.URL,
		&sub.Secret,
		&sub.Events,
		&sub.Enabled,
		&sub.CreatedByID,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	const query = `
		INSERT INTO webhook_subscriptions
			(id, team_id, name, url, secret, events, enabled, created_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		sub.ID,
		sub.TeamID,
		sub.Name,
		sub.URL,
		sub.Secret,
		sub.Events,
		sub.Enabled,
		sub.CreatedByID,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	return err
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	const query = `
		SELECT ` + subscriptionColumns + `
		FROM webhook_subscriptions
		WHERE id = $1
	`
	return scanSubscription(r.pool.QueryRow(ctx, query, id))
}

func (r *SubscriptionRepository) ListByTeam(ctx context.Context, teamID string) ([]*domain.Subscription, error) {
	const query = `
		SELECT ` + subscriptionColumns + `
		FROM webhook_subscriptions
		WHERE team_id = $1
		ORDER BY created_at
	`
	return r.querySubscriptions(ctx, query, teamID)
}

func (r *SubscriptionRepository) FindEnabledByTeam(ctx context.Context, teamID string) ([]*domain.Subscription, error) {
	const query = `
		SELECT ` + subscriptionColumns + `
		FROM webhook_subscriptions
		WHERE team_id = $1 AND enabled = TRUE
		ORDER BY created_at
	`
	return r.querySubscriptions(ctx, query, teamID)
}

func (r *SubscriptionRepository) querySubscriptions(ctx context.Context, query string, args ...any) ([]*domain.Subscription, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *SubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	const query = `
		UPDATE webhook_subscriptions
		SET name = $2, url = $3, secret = NULLIF($4, ''), events = $5, enabled = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		sub.ID,
		sub.Name,
		sub.URL,
		sub.Secret,
		sub.Events,
		sub.Enabled,
		sub.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepository) Disable(ctx context.Context, id string) error {
	const query = `
		UPDATE webhook_subscriptions
		SET enabled = FALSE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepository) Delete(ctx context.Context, id string) error {
	const query = `
		DELETE FROM webhook_subscriptions
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
