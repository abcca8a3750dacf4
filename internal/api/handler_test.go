package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillhq/hookrelay/internal/clock"
	"github.com/quillhq/hookrelay/internal/domain"
)

type mockSubRepo struct {
	subs map[string]*domain.Subscription
}

func newMockSubRepo() *mockSubRepo {
	return &mockSubRepo{subs: make(map[string]*domain.Subscription)}
}

func (m *mockSubRepo) Create(ctx context.Context, sub *domain.Subscription) error {
	m.subs[sub.ID] = sub
	return nil
}

func (m *mockSubRepo) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	if s, ok := m.subs[id]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubRepo) ListByTeam(ctx context.Context, teamID string) ([]*domain.Subscription, error) {
	var result []*domain.Subscription
	for _, s := range m.subs {
		if s.TeamID == teamID {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *mockSubRepo) FindEnabledByTeam(ctx context.Context, teamID string) ([]*domain.Subscription, error) {
	var result []*domain.Subscription
	for _, s := range m.subs {
		if s.TeamID == teamID && s.Enabled {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *mockSubRepo) Update(ctx context.Context, sub *domain.Subscription) error {
	if _, ok := m.subs[sub.ID]; !ok {
		return domain.ErrNotFound
	}
	m.subs[sub.ID] = sub
	return nil
}

func (m *mockSubRepo) Disable(ctx context.Context, id string) error {
	s, ok := m.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Enabled = false
	return nil
}

func (m *mockSubRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.subs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.subs, id)
	return nil
}

type mockDeliveryRepo struct {
	rows []*domain.Delivery
}

func (m *mockDeliveryRepo) Create(ctx context.Context, d *domain.Delivery) error   { return nil }
func (m *mockDeliveryRepo) Finalize(ctx context.Context, d *domain.Delivery) error { return nil }

func (m *mockDeliveryRepo) RecentBySubscription(ctx context.Context, subID string, limit int) ([]*domain.Delivery, error) {
	var result []*domain.Delivery
	for i := len(m.rows) - 1; i >= 0 && len(result) < limit; i-- {
		if m.rows[i].SubscriptionID == subID {
			result = append(result, m.rows[i])
		}
	}
	return result, nil
}

func (m *mockDeliveryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newTestHandler(subs *mockSubRepo, deliveries *mockDeliveryRepo) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := &clock.MockClock{NowTime: time.Unix(1700000000, 0)}
	return NewHandler(subs, deliveries, clk, logger)
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", h.CreateSubscription)
		r.Get("/", h.ListSubscriptions)
		r.Get("/{id}", h.GetSubscription)
		r.Put("/{id}", h.UpdateSubscription)
		r.Delete("/{id}", h.DeleteSubscription)
		r.Get("/{id}/deliveries", h.RecentDeliveries)
	})
	return r
}

func TestHandler_CreateSubscription(t *testing.T) {
	subs := newMockSubRepo()
	router := newTestRouter(newTestHandler(subs, &mockDeliveryRepo{}))

	body := `{"teamId": "team-1", "name": "ci", "url": "https://example.com/hook", "secret": "s3cret", "events": ["documents.publish"], "createdById": "user-1"}`
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp domain.Subscription
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID == "" {
		t.Error("expected a generated subscription id")
	}
	if !resp.Enabled {
		t.Error("new subscriptions should start enabled")
	}

	stored, ok := subs.subs[resp.ID]
	if !ok {
		t.Fatal("subscription not stored")
	}
	if stored.Secret != "s3cret" {
		t.Errorf("stored secret = %q, want s3cret", stored.Secret)
	}
	if strings.Contains(rec.Body.String(), "s3cret") {
		t.Error("secret leaked into the response body")
	}
}

func TestHandler_CreateSubscription_RequiresEventPattern(t *testing.T) {
	subs := newMockSubRepo()
	router := newTestRouter(newTestHandler(subs, &mockDeliveryRepo{}))

	body := `{"teamId": "team-1", "name": "ci", "url": "https://example.com/hook", "events": []}`
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(subs.subs) != 0 {
		t.Error("invalid subscription was stored")
	}
}

func TestHandler_ListSubscriptions_ScopedToTeam(t *testing.T) {
	subs := newMockSubRepo()
	subs.subs["sub-1"] = &domain.Subscription{ID: "sub-1", TeamID: "team-1", Name: "a", URL: "https://a", Events: []string{"*"}}
	subs.subs["sub-2"] = &domain.Subscription{ID: "sub-2", TeamID: "team-2", Name: "b", URL: "https://b", Events: []string{"*"}}
	router := newTestRouter(newTestHandler(subs, &mockDeliveryRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/subscriptions?teamId=team-1", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got []*domain.Subscription
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "sub-1" {
		t.Errorf("got %+v, want only sub-1", got)
	}
}

func TestHandler_ListSubscriptions_RequiresTeam(t *testing.T) {
	router := newTestRouter(newTestHandler(newMockSubRepo(), &mockDeliveryRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/subscriptions", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandler_UpdateSubscription(t *testing.T) {
	subs := newMockSubRepo()
	subs.subs["sub-1"] = &domain.Subscription{
		ID: "sub-1", TeamID: "team-1", Name: "old", URL: "https://old",
		Secret: "keep-me", Events: []string{"*"}, Enabled: true,
	}
	router := newTestRouter(newTestHandler(subs, &mockDeliveryRepo{}))

	body := `{"name": "new", "url": "https://new", "events": ["documents.publish"], "enabled": false}`
	req := httptest.NewRequest(http.MethodPut, "/subscriptions/sub-1", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	got := subs.subs["sub-1"]
	if got.Name != "new" || got.URL != "https://new" || got.Enabled {
		t.Errorf("update not applied: %+v", got)
	}
	if got.Secret != "keep-me" {
		t.Errorf("secret = %q, want unchanged when omitted", got.Secret)
	}
}

func TestHandler_GetSubscription_NotFound(t *testing.T) {
	router := newTestRouter(newTestHandler(newMockSubRepo(), &mockDeliveryRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/subscriptions/missing", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandler_DeleteSubscription(t *testing.T) {
	subs := newMockSubRepo()
	subs.subs["sub-1"] = &domain.Subscription{ID: "sub-1", TeamID: "team-1"}
	router := newTestRouter(newTestHandler(subs, &mockDeliveryRepo{}))

	req := httptest.NewRequest(http.MethodDelete, "/subscriptions/sub-1", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if _, ok := subs.subs["sub-1"]; ok {
		t.Error("subscription still present after delete")
	}
}

func TestHandler_RecentDeliveries(t *testing.T) {
	subs := newMockSubRepo()
	subs.subs["sub-1"] = &domain.Subscription{ID: "sub-1", TeamID: "team-1"}
	code := 200
	deliveries := &mockDeliveryRepo{rows: []*domain.Delivery{
		{ID: "d-1", SubscriptionID: "sub-1", Status: domain.DeliveryStatusSuccess, StatusCode: &code},
		{ID: "d-2", SubscriptionID: "other", Status: domain.DeliveryStatusFailed},
		{ID: "d-3", SubscriptionID: "sub-1", Status: domain.DeliveryStatusFailed},
	}}
	router := newTestRouter(newTestHandler(subs, deliveries))

	req := httptest.NewRequest(http.MethodGet, "/subscriptions/sub-1/deliveries", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got []*domain.Delivery
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d deliveries, want 2", len(got))
	}
	if got[0].ID != "d-3" {
		t.Errorf("first delivery = %s, want newest first", got[0].ID)
	}
}

func TestHandler_RecentDeliveries_UnknownSubscription(t *testing.T) {
	router := newTestRouter(newTestHandler(newMockSubRepo(), &mockDeliveryRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/subscriptions/missing/deliveries", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
