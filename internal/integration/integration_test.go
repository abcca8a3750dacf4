package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/quillhq/hookrelay/internal/api"
	"github.com/quillhq/hookrelay/internal/clock"
	"github.com/quillhq/hookrelay/internal/delivery"
	"github.com/quillhq/hookrelay/internal/domain"
	"github.com/quillhq/hookrelay/internal/observability"
	"github.com/quillhq/hookrelay/internal/payload"
	"github.com/quillhq/hookrelay/internal/queue"
	"github.com/quillhq/hookrelay/internal/repository/postgres"
	"github.com/quillhq/hookrelay/internal/retention"
	"github.com/quillhq/hookrelay/internal/router"
)

type testEnv struct {
	pgContainer *tcpostgres.PostgresContainer
	pool        *pgxpool.Pool
	handler     http.Handler
	subRepo     *postgres.SubscriptionRepository
	deliveries  *postgres.DeliveryRepository
	entities    *postgres.EntityReader
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("quill_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		cancel()
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		cancel()
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
		cancel()
		t.Fatalf("failed to run migrations: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	subRepo := postgres.NewSubscriptionRepository(pool)
	deliveryRepo := postgres.NewDeliveryRepository(pool)
	entities := postgres.NewEntityReader(pool)

	handler := api.NewHandler(subRepo, deliveryRepo, clock.RealClock{}, logger)
	mux := api.NewRouter(api.RouterConfig{
		Handler: handler,
		HealthHandler: observability.NewHealthHandler(map[string]observability.HealthChecker{
			"database": pool,
		}),
		Logger: logger,
	})

	return &testEnv{
		pgContainer: pgContainer,
		pool:        pool,
		handler:     mux,
		subRepo:     subRepo,
		deliveries:  deliveryRepo,
		entities:    entities,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (e *testEnv) teardown(t *testing.T) {
	t.Helper()
	e.pool.Close()
	_ = e.pgContainer.Terminate(e.ctx)
	e.cancel()
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		// Engine tables, matching migrations/.
		`CREATE TABLE webhook_subscriptions (
			id UUID PRIMARY KEY,
			team_id UUID NOT NULL,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT,
			events TEXT[] NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_by_id UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE webhook_deliveries (
			id UUID PRIMARY KEY,
			webhook_subscription_id UUID NOT NULL REFERENCES webhook_subscriptions (id) ON DELETE CASCADE,
			status TEXT NOT NULL CHECK (status IN ('pending', 'success', 'failed')),
			status_code INTEGER,
			request_body BYTEA,
			request_headers JSONB,
			response_body BYTEA,
			response_headers JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		// Minimal slices of the product tables the payload builder reads.
		`CREATE TABLE documents (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			emoji TEXT,
			team_id UUID NOT NULL,
			collection_id UUID,
			parent_document_id UUID,
			created_by_id UUID,
			published_at TIMESTAMPTZ,
			archived_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE TABLE users (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			avatar_url TEXT,
			team_id UUID,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			suspended_at TIMESTAMPTZ,
			last_active_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		)`,
	}

	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (e *testEnv) createSubscription(t *testing.T, url, secret string, events []string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"teamId":      teamID,
		"name":        "integration",
		"url":         url,
		"secret":      secret,
		"events":      events,
		"createdById": creatorID,
	})

	req := httptest.NewRequest(http.MethodPost, "/subscriptions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("create subscription: status %d: %s", rec.Code, rec.Body.String())
	}

	var sub domain.Subscription
	if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
		t.Fatalf("decode subscription: %v", err)
	}
	return sub.ID
}

var (
	teamID    = uuid.NewString()
	creatorID = uuid.NewString()
)

func (e *testEnv) insertDocument(t *testing.T, id string) {
	t.Helper()
	_, err := e.pool.Exec(e.ctx,
		`INSERT INTO documents (id, title, text, team_id, created_by_id, published_at)
		 VALUES ($1, 'Launch plan', 'contents', $2, $3, NOW())`,
		id, teamID, creatorID,
	)
	if err != nil {
		t.Fatalf("insert document: %v", err)
	}
}

func (e *testEnv) newPipeline(t *testing.T) (*router.Router, *queue.Queue) {
	t.Helper()
	registry := payload.NewRegistry(e.entities, e.logger)
	deliverer := delivery.NewDeliverer(e.subRepo, e.deliveries, registry,
		delivery.WithLogger(e.logger),
		delivery.WithUserAgent("Quill-Webhooks/test"),
	)

	q := queue.New(queue.Config{Workers: 2, Buffer: 64}, e.logger)
	q.Start(e.ctx)
	return router.New(e.subRepo, deliverer, q, e.logger, nil), q
}

// End-to-end: subscription created over the API, an event routed through the
// queue, the signed POST received, and the delivery row finalized.
func TestEndToEndDelivery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	received := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	destination := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- r.Clone(context.Background())
		bodies <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer destination.Close()

	subID := env.createSubscription(t, destination.URL, "topsecret", []string{"documents.publish"})

	docID := uuid.NewString()
	env.insertDocument(t, docID)

	eventRouter, q := env.newPipeline(t)
	defer q.Stop()

	err := eventRouter.Route(env.ctx, &domain.Event{
		Name:       "documents.publish",
		TeamID:     teamID,
		ActorID:    creatorID,
		DocumentID: docID,
		ModelID:    docID,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("route: %v", err)
	}

	var req *http.Request
	var body []byte
	select {
	case req = <-received:
		body = <-bodies
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for webhook delivery")
	}

	if got := req.Header.Get("User-Agent"); got != "Quill-Webhooks/test" {
		t.Errorf("User-Agent = %q", got)
	}
	sigFormat := regexp.MustCompile(`^t=\d+,s=[0-9a-f]{64}$`)
	if sig := req.Header.Get("Quill-Signature"); !sigFormat.MatchString(sig) {
		t.Errorf("Quill-Signature = %q, want t=<unix>,s=<hex>", sig)
	}

	var hook struct {
		Event                 string `json:"event"`
		WebhookSubscriptionID string `json:"webhookSubscriptionId"`
		Payload               struct {
			ID    string         `json:"id"`
			Model map[string]any `json:"model"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &hook); err != nil {
		t.Fatalf("decode webhook body: %v", err)
	}
	if hook.Event != "documents.publish" || hook.WebhookSubscriptionID != subID {
		t.Errorf("webhook body = %+v", hook)
	}
	if hook.Payload.ID != docID {
		t.Errorf("payload id = %q, want %q", hook.Payload.ID, docID)
	}
	if hook.Payload.Model["title"] != "Launch plan" {
		t.Errorf("model title = %v", hook.Payload.Model["title"])
	}

	// The delivery row must be finalized with the stored request bytes.
	deadline := time.Now().Add(5 * time.Second)
	for {
		rows, err := env.deliveries.RecentBySubscription(env.ctx, subID, 1)
		if err != nil {
			t.Fatalf("read deliveries: %v", err)
		}
		if len(rows) == 1 && rows[0].Status == domain.DeliveryStatusSuccess {
			if !bytes.Equal(rows[0].RequestBody, body) {
				t.Error("stored request body differs from the bytes sent")
			}
			if rows[0].StatusCode == nil || *rows[0].StatusCode != http.StatusOK {
				t.Errorf("status code = %v, want 200", rows[0].StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("delivery row never finalized: %+v", rows)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// A trailing window of failures disables the subscription and further
// deliveries write no rows.
func TestCircuitBreakerDisablesSubscription(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	destination := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer destination.Close()

	subID := env.createSubscription(t, destination.URL, "", []string{"*"})

	docID := uuid.NewString()
	env.insertDocument(t, docID)

	registry := payload.NewRegistry(env.entities, env.logger)
	deliverer := delivery.NewDeliverer(env.subRepo, env.deliveries, registry,
		delivery.WithLogger(env.logger),
	)

	event := &domain.Event{
		Name:       "documents.update",
		TeamID:     teamID,
		DocumentID: docID,
		ModelID:    docID,
		CreatedAt:  time.Now(),
	}

	for i := 0; i < delivery.BreakerWindow; i++ {
		if err := deliverer.Deliver(env.ctx, subID, event); err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
	}

	sub, err := env.subRepo.GetByID(env.ctx, subID)
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub.Enabled {
		t.Fatal("subscription still enabled after a full window of failures")
	}

	// Disabled subscriptions are a silent no-op with no new row.
	if err := deliverer.Deliver(env.ctx, subID, event); err != nil {
		t.Fatalf("deliver after disable: %v", err)
	}
	rows, err := env.deliveries.RecentBySubscription(env.ctx, subID, delivery.BreakerWindow+5)
	if err != nil {
		t.Fatalf("read deliveries: %v", err)
	}
	if len(rows) != delivery.BreakerWindow {
		t.Errorf("delivery rows = %d, want %d", len(rows), delivery.BreakerWindow)
	}
}

// Retention sweep deletes only rows past the horizon.
func TestRetentionSweep(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	subID := env.createSubscription(t, "https://example.com/hook", "", []string{"*"})

	insert := func(age time.Duration) {
		_, err := env.pool.Exec(env.ctx,
			`INSERT INTO webhook_deliveries (id, webhook_subscription_id, status, created_at)
			 VALUES ($1, $2, 'failed', NOW() - $3::interval)`,
			uuid.NewString(), subID, fmt.Sprintf("%d seconds", int(age.Seconds())),
		)
		if err != nil {
			t.Fatalf("insert delivery: %v", err)
		}
	}
	insert(8 * 24 * time.Hour)
	insert(6 * 24 * time.Hour)
	insert(time.Hour)

	sweeper := retention.NewSweeper(env.deliveries, retention.DefaultConfig(), clock.RealClock{}, env.logger)
	sweeper.Sweep(env.ctx)

	var count int
	if err := env.pool.QueryRow(env.ctx, `SELECT COUNT(*) FROM webhook_deliveries`).Scan(&count); err != nil {
		t.Fatalf("count deliveries: %v", err)
	}
	if count != 2 {
		t.Errorf("rows after sweep = %d, want 2", count)
	}
}
