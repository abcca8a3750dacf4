package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillhq/hookrelay/internal/domain"
	"github.com/quillhq/hookrelay/internal/payload"
)

// EntityReader is the read-only view over the product's tables that payload
// construction needs. Every query finds soft-deleted rows on purpose: a
// deleted entity still yields a payload with a correct id, so subscribers
// can react to deletions. Each query builds the public representation in
// SQL so no internal column ever leaks into a payload by accident.
type EntityReader struct {
	pool *pgxpool.Pool
}

func NewEntityReader(pool *pgxpool.Pool) *EntityReader {
	return &EntityReader{pool: pool}
}

// lookupJSON runs a query shaped as (deleted bool, model jsonb) and folds it
// into the three-way lookup result.
func (r *EntityReader) lookupJSON(ctx context.Context, query, id string) (payload.Lookup, error) {
	var deleted bool
	var model []byte

	err := r.pool.QueryRow(ctx, query, id).Scan(&deleted, &model)
	if errors.Is(err, pgx.ErrNoRows) {
		return payload.Lookup{State: payload.LookupMissing}, nil
	}
	if err != nil {
		return payload.Lookup{}, err
	}
	if deleted {
		return payload.Lookup{State: payload.LookupDeleted}, nil
	}

	var m map[string]any
	if err := json.Unmarshal(model, &m); err != nil {
		return payload.Lookup{}, fmt.Errorf("decode entity model: %w", err)
	}
	return payload.Lookup{State: payload.LookupActive, Model: m}, nil
}

func (r *EntityReader) Document(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT deleted_at IS NOT NULL, jsonb_build_object(
			'id', id,
			'title', title,
			'text', text,
			'emoji', emoji,
			'teamId', team_id,
			'collectionId', collection_id,
			'parentDocumentId', parent_document_id,
			'createdById', created_by_id,
			'publishedAt', published_at,
			'archivedAt', archived_at,
			'createdAt', created_at,
			'updatedAt', updated_at
		)
		FROM documents WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

func (r *EntityReader) Collection(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT deleted_at IS NOT NULL, jsonb_build_object(
			'id', id,
			'name', name,
			'description', description,
			'color', color,
			'icon', icon,
			'teamId', team_id,
			'permission', permission,
			'createdAt', created_at,
			'updatedAt', updated_at
		)
		FROM collections WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

func (r *EntityReader) Group(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT deleted_at IS NOT NULL, jsonb_build_object(
			'id', id,
			'name', name,
			'teamId', team_id,
			'createdAt', created_at,
			'updatedAt', updated_at
		)
		FROM groups WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

func (r *EntityReader) User(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT deleted_at IS NOT NULL, jsonb_build_object(
			'id', id,
			'name', name,
			'email', email,
			'avatarUrl', avatar_url,
			'teamId', team_id,
			'isAdmin', is_admin,
			'isSuspended', suspended_at IS NOT NULL,
			'lastActiveAt', last_active_at,
			'createdAt', created_at,
			'updatedAt', updated_at
		)
		FROM users WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

func (r *EntityReader) Team(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT deleted_at IS NOT NULL, jsonb_build_object(
			'id', id,
			'name', name,
			'avatarUrl', avatar_url,
			'subdomain', subdomain,
			'sharing', sharing,
			'createdAt', created_at,
			'updatedAt', updated_at
		)
		FROM teams WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

func (r *EntityReader) Pin(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT FALSE, jsonb_build_object(
			'id', id,
			'documentId', document_id,
			'collectionId', collection_id,
			'index', index,
			'createdById', created_by_id,
			'createdAt', created_at,
			'updatedAt', updated_at
		)
		FROM pins WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

func (r *EntityReader) Star(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT FALSE, jsonb_build_object(
			'id', id,
			'documentId', document_id,
			'userId', user_id,
			'index', index,
			'createdAt', created_at,
			'updatedAt', updated_at
		)
		FROM stars WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

func (r *EntityReader) Share(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT revoked_at IS NOT NULL, jsonb_build_object(
			'id', id,
			'documentId', document_id,
			'teamId', team_id,
			'userId', user_id,
			'published', published,
			'lastAccessedAt', last_accessed_at,
			'createdAt', created_at,
			'updatedAt', updated_at
		)
		FROM shares WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

func (r *EntityReader) View(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT FALSE, jsonb_build_object(
			'id', id,
			'documentId', document_id,
			'userId', user_id,
			'count', count,
			'lastViewedAt', last_viewed_at
		)
		FROM views WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

func (r *EntityReader) Comment(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT deleted_at IS NOT NULL, jsonb_build_object(
			'id', id,
			'documentId', document_id,
			'parentCommentId', parent_comment_id,
			'data', data,
			'createdById', created_by_id,
			'createdAt', created_at,
			'updatedAt', updated_at
		)
		FROM comments WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

func (r *EntityReader) FileOperation(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT deleted_at IS NOT NULL, jsonb_build_object(
			'id', id,
			'type', type,
			'state', state,
			'size', size,
			'teamId', team_id,
			'userId', user_id,
			'createdAt', created_at,
			'updatedAt', updated_at
		)
		FROM file_operations WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

func (r *EntityReader) Revision(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT FALSE, jsonb_build_object(
			'id', id,
			'documentId', document_id,
			'title', title,
			'text', text,
			'createdById', created_by_id,
			'createdAt', created_at
		)
		FROM revisions WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

func (r *EntityReader) Integration(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT deleted_at IS NOT NULL, jsonb_build_object(
			'id', id,
			'type', type,
			'service', service,
			'teamId', team_id,
			'collectionId', collection_id,
			'events', events,
			'createdAt', created_at,
			'updatedAt', updated_at
		)
		FROM integrations WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

// WebhookSubscription presents our own subscription rows. The secret is
// deliberately absent from the model. Subscriptions are hard-deleted, so a
// removed one reads as missing rather than soft-deleted.
func (r *EntityReader) WebhookSubscription(ctx context.Context, id string) (payload.Lookup, error) {
	const query = `
		SELECT FALSE, jsonb_build_object(
			'id', id,
			'teamId', team_id,
			'name', name,
			'url', url,
			'events', events,
			'enabled', enabled,
			'createdById', created_by_id,
			'createdAt', created_at,
			'updatedAt', updated_at
		)
		FROM webhook_subscriptions WHERE id = $1
	`
	return r.lookupJSON(ctx, query, id)
}

// UserEmail resolves a user id for the disablement notice. Suspended and
// soft-deleted users still resolve; the product owns whether mail to them
// bounces.
func (r *EntityReader) UserEmail(ctx context.Context, id string) (string, error) {
	const query = `SELECT email FROM users WHERE id = $1`

	var email string
	err := r.pool.QueryRow(ctx, query, id).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return email, nil
}
