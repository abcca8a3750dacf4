// Package api exposes subscription management and delivery inspection over
// HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quillhq/hookrelay/internal/clock"
	"github.com/quillhq/hookrelay/internal/domain"
	"github.com/quillhq/hookrelay/internal/repository"
)

type Handler struct {
	subs       repository.SubscriptionRepository
	deliveries repository.DeliveryRepository
	clock      clock.Clock
	logger     *slog.Logger
}

func NewHandler(subs repository.SubscriptionRepository, deliveries repository.DeliveryRepository, clk clock.Clock, logger *slog.Logger) *Handler {
	return &Handler{
		subs:       subs,
		deliveries: deliveries,
		clock:      clk,
		logger:     logger,
	}
}

type CreateSubscriptionRequest struct {
	TeamID      string   `json:"teamId"`
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Secret      string   `json:"secret,omitempty"`
	Events      []string `json:"events"`
	CreatedByID string   `json:"createdById"`
}

func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TeamID == "" {
		h.respondError(w, http.StatusBadRequest, "teamId is required")
		return
	}

	now := h.clock.Now()
	sub := &domain.Subscription{
		ID:          uuid.NewString(),
		TeamID:      req.TeamID,
		Name:        req.Name,
		URL:         req.URL,
		Secret:      req.Secret,
		Events:      req.Events,
		Enabled:     true,
		CreatedByID: req.CreatedByID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := sub.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, "name, url, and at least one event pattern are required")
		return
	}

	if err := h.subs.Create(r.Context(), sub); err != nil {
		h.logger.Error("failed to create subscription", "error", err, "team_id", req.TeamID)
		h.respondError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	h.respondJSON(w, http.StatusCreated, sub)
}

func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.subs.GetByID(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "subscription not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get subscription", "error", err, "subscription_id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}

	h.respondJSON(w, http.StatusOK, sub)
}

func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	teamID := r.URL.Query().Get("teamId")
	if teamID == "" {
		h.respondError(w, http.StatusBadRequest, "teamId query parameter is required")
		return
	}

	subs, err := h.subs.ListByTeam(r.Context(), teamID)
	if err != nil {
		h.logger.Error("failed to list subscriptions", "error", err, "team_id", teamID)
		h.respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []*domain.Subscription{}
	}

	h.respondJSON(w, http.StatusOK, subs)
}

type UpdateSubscriptionRequest struct {
	Name    string   `json:"name"`
	URL     string   `json:"url"`
	Secret  *string  `json:"secret,omitempty"`
	Events  []string `json:"events"`
	Enabled bool     `json:"enabled"`
}

func (h *Handler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.subs.GetByID(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "subscription not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get subscription", "error", err, "subscription_id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to update subscription")
		return
	}

	sub.Name = req.Name
	sub.URL = req.URL
	sub.Events = req.Events
	sub.Enabled = req.Enabled
	if req.Secret != nil {
		sub.Secret = *req.Secret
	}
	sub.UpdatedAt = h.clock.Now()

	if err := sub.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, "name, url, and at least one event pattern are required")
		return
	}

	if err := h.subs.Update(r.Context(), sub); err != nil {
		h.logger.Error("failed to update subscription", "error", err, "subscription_id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to update subscription")
		return
	}

	h.respondJSON(w, http.StatusOK, sub)
}

func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.subs.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "subscription not found")
			return
		}
		h.logger.Error("failed to delete subscription", "error", err, "subscription_id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RecentDeliveries returns the newest delivery records for a subscription,
// newest first. Useful when debugging a failing destination.
func (h *Handler) RecentDeliveries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.subs.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "subscription not found")
			return
		}
		h.logger.Error("failed to get subscription", "error", err, "subscription_id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to get deliveries")
		return
	}

	limit := 25
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			h.respondError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	deliveries, err := h.deliveries.RecentBySubscription(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("failed to get deliveries", "error", err, "subscription_id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to get deliveries")
		return
	}
	if deliveries == nil {
		deliveries = []*domain.Delivery{}
	}

	h.respondJSON(w, http.StatusOK, deliveries)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: message})
}
