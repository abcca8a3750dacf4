package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillhq/hookrelay/internal/domain"
)

type DeliveryRepository struct {
	pool *pgxpool.Pool
}

func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

func (r *DeliveryRepository) Create(ctx context.Context, d *domain.Delivery) error {
	const query = `
		INSERT INTO webhook_deliveries (id, webhook_subscription_id, status, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query,
		d.ID,
		d.SubscriptionID,
		d.Status,
		d.CreatedAt,
	)
	return err
}

// Finalize writes the terminal state. It refuses to touch a row that is no
// longer pending, keeping the one-update contract honest even under task
// redelivery.
func (r *DeliveryRepository) Finalize(ctx context.Context, d *domain.Delivery) error {
	const query = `
		UPDATE webhook_deliveries
		SET status = $2, status_code = $3,
		    request_body = $4, request_headers = $5,
		    response_body = $6, response_headers = $7
		WHERE id = $1 AND status = 'pending'
	`

	reqHeaders, err := marshalHeaders(d.RequestHeaders)
	if err != nil {
		return err
	}
	respHeaders, err := marshalHeaders(d.ResponseHeaders)
	if err != nil {
		return err
	}

	result, err := r.pool.Exec(ctx, query,
		d.ID,
		d.Status,
		d.StatusCode,
		d.RequestBody,
		reqHeaders,
		d.ResponseBody,
		respHeaders,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DeliveryRepository) RecentBySubscription(ctx context.Context, subscriptionID string, limit int) ([]*domain.Delivery, error) {
	const query = `
		SELECT id, webhook_subscription_id, status, status_code,
		       request_body, request_headers, response_body, response_headers, created_at
		FROM webhook_deliveries
		WHERE webhook_subscription_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, subscriptionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	const query = `
		SELECT id, webhook_subscription_id, status, status_code,
		       request_body, request_headers, response_body, response_headers, created_at
		FROM webhook_deliveries
		WHERE id = $1
	`
	return scanDelivery(r.pool.QueryRow(ctx, query, id))
}

// DeleteOlderThan hard-deletes expired rows regardless of status.
func (r *DeliveryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		DELETE FROM webhook_deliveries
		WHERE created_at < $1
	`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var d domain.Delivery
	var reqHeaders, respHeaders []byte
	err := row.Scan(
		&d.ID,
		&d.SubscriptionID,
		&d.Status,
		&d.StatusCode,
		&d.RequestBody,
		&reqHeaders,
		&d.ResponseBody,
		&respHeaders,
		&d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if d.RequestHeaders, err = unmarshalHeaders(reqHeaders); err != nil {
		return nil, err
	}
	if d.ResponseHeaders, err = unmarshalHeaders(respHeaders); err != nil {
		return nil, err
	}
	return &d, nil
}

func marshalHeaders(h map[string]string) ([]byte, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

func unmarshalHeaders(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var h map[string]string
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, err
	}
	return h, nil
}
