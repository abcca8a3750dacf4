// Package delivery implements the delivery task: one (event, subscription)
// pair in, one signed HTTP POST out, one delivery row written, and a circuit
// breaker check on failure.
//
// A task makes exactly one attempt. There is no internal retry loop; the
// task scheduler's at-least-once execution is the only source of redelivery,
// so duplicate rows for the same logical event are an accepted possibility.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/quillhq/hookrelay/internal/clock"
	"github.com/quillhq/hookrelay/internal/domain"
	"github.com/quillhq/hookrelay/internal/observability"
	"github.com/quillhq/hookrelay/internal/payload"
	"github.com/quillhq/hookrelay/internal/repository"
	"github.com/quillhq/hookrelay/internal/signer"
)

// HTTPClient abstracts the HTTP transport for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DisabledNotifier tells a subscription's creator that the circuit breaker
// turned it off.
type DisabledNotifier interface {
	SubscriptionDisabled(ctx context.Context, sub *domain.Subscription) error
}

const (
	// SignatureHeader carries the timestamped HMAC of the request body.
	SignatureHeader = "Quill-Signature"

	// BreakerWindow is the trailing delivery count the circuit breaker
	// inspects; a full window of failures disables the subscription.
	BreakerWindow = 25

	// maxResponseCapture bounds how much of a destination's response body is
	// stored verbatim on the delivery row.
	maxResponseCapture = 1 << 20
)

// Option configures a Deliverer.
type Option func(*Deliverer)

func WithHTTPClient(c HTTPClient) Option {
	return func(d *Deliverer) { d.client = c }
}

func WithClock(c clock.Clock) Option {
	return func(d *Deliverer) { d.clock = c }
}

func WithNotifier(n DisabledNotifier) Option {
	return func(d *Deliverer) { d.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Deliverer) { d.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(d *Deliverer) { d.metrics = m }
}

// WithUserAgent sets the sender identity, typically "Quill-Webhooks/<build>".
func WithUserAgent(ua string) Option {
	return func(d *Deliverer) { d.userAgent = ua }
}

func WithBreakerWindow(n int) Option {
	return func(d *Deliverer) { d.window = n }
}

// Deliverer executes delivery tasks. It holds no state across invocations
// beyond its injected dependencies.
type Deliverer struct {
	subs       repository.SubscriptionRepository
	deliveries repository.DeliveryRepository
	registry   *payload.Registry
	client     HTTPClient
	clock      clock.Clock
	notifier   DisabledNotifier
	logger     *slog.Logger
	metrics    *observability.Metrics
	userAgent  string
	window     int
}

// NewDeliverer creates a delivery task executor. Required dependencies are
// the two stores and the payload registry; the rest default sensibly and can
// be replaced via options.
func NewDeliverer(
	subs repository.SubscriptionRepository,
	deliveries repository.DeliveryRepository,
	registry *payload.Registry,
	opts ...Option,
) *Deliverer {
	d := &Deliverer{
		subs:       subs,
		deliveries: deliveries,
		registry:   registry,
		client:     NewHTTPClient(DefaultTimeout),
		clock:      clock.RealClock{},
		logger:     slog.Default(),
		userAgent:  "Quill-Webhooks",
		window:     BreakerWindow,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type requestBody struct {
	Event                 string           `json:"event"`
	WebhookSubscriptionID string           `json:"webhookSubscriptionId"`
	Payload               *payload.Payload `json:"payload"`
}

// Deliver executes one delivery task. A missing subscription is a task
// failure surfaced to the scheduler; a disabled subscription is a silent
// no-op with no row written.
func (d *Deliverer) Deliver(ctx context.Context, subscriptionID string, event *domain.Event) error {
	sub, err := d.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("load subscription %s: %w", subscriptionID, err)
	}

	if !sub.Enabled {
		d.logger.Debug("subscription disabled, skipping delivery",
			"subscription_id", sub.ID,
			"event", event.Name,
		)
		return nil
	}

	p, ok, err := d.registry.Build(ctx, event)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	del := &domain.Delivery{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		Status:         domain.DeliveryStatusPending,
		CreatedAt:      d.clock.Now(),
	}
	if err := d.deliveries.Create(ctx, del); err != nil {
		return fmt.Errorf("create delivery row: %w", err)
	}

	body, err := json.Marshal(requestBody{
		Event:                 event.Name,
		WebhookSubscriptionID: sub.ID,
		Payload:               p,
	})
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   d.userAgent,
	}
	if sig := signer.Sign(sub.Secret, body, d.clock.Now()); sig != "" {
		headers[SignatureHeader] = sig
	}

	del.RequestBody = body
	del.RequestHeaders = headers

	start := d.clock.Now()
	d.send(ctx, sub, body, headers, del)
	if d.metrics != nil {
		d.metrics.DeliveryDuration.Observe(d.clock.Now().Sub(start).Seconds())
		d.metrics.Deliveries.WithLabelValues(string(del.Status)).Inc()
	}

	if err := d.deliveries.Finalize(ctx, del); err != nil {
		return fmt.Errorf("finalize delivery %s: %w", del.ID, err)
	}

	d.logger.Debug("delivery finalized",
		"delivery_id", del.ID,
		"subscription_id", sub.ID,
		"event", event.Name,
		"status", del.Status,
	)

	if del.Status == domain.DeliveryStatusFailed {
		d.maybeDisable(ctx, sub)
	}
	return nil
}

// send performs the single POST and classifies the outcome onto del. A
// transport-level error (DNS, refused connection, timeout, refused redirect)
// is a failure with no status code and an empty response body.
func (d *Deliverer) send(ctx context.Context, sub *domain.Subscription, body []byte, headers map[string]string, del *domain.Delivery) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		del.Finalize(domain.DeliveryStatusFailed, nil)
		d.logger.Warn("building delivery request failed",
			"subscription_id", sub.ID,
			"error", err,
		)
		return
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		del.Finalize(domain.DeliveryStatusFailed, nil)
		d.logger.Info("delivery transport error",
			"subscription_id", sub.ID,
			"url", sub.URL,
			"error", err,
		)
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseCapture))
	code := resp.StatusCode

	del.ResponseBody = respBody
	del.ResponseHeaders = flattenHeaders(resp.Header)

	if code >= 200 && code < 300 {
		del.Finalize(domain.DeliveryStatusSuccess, &code)
		return
	}
	del.Finalize(domain.DeliveryStatusFailed, &code)
}

// maybeDisable evaluates the circuit breaker: a full trailing window of
// failed deliveries opens the circuit by disabling the subscription row.
// One success anywhere in the window resets it. The history read is
// unsynchronized with concurrent tasks; the worst case shifts the disable
// decision by one delivery, which is tolerated.
func (d *Deliverer) maybeDisable(ctx context.Context, sub *domain.Subscription) {
	recent, err := d.deliveries.RecentBySubscription(ctx, sub.ID, d.window)
	if err != nil {
		d.logger.Error("circuit breaker history read failed",
			"subscription_id", sub.ID,
			"error", err,
		)
		return
	}
	if len(recent) < d.window {
		return
	}
	for _, r := range recent {
		if r.Status != domain.DeliveryStatusFailed {
			return
		}
	}

	if err := d.subs.Disable(ctx, sub.ID); err != nil {
		d.logger.Error("failed to disable subscription",
			"subscription_id", sub.ID,
			"error", err,
		)
		return
	}
	if d.metrics != nil {
		d.metrics.SubscriptionsDisabled.Inc()
	}
	d.logger.Warn("subscription disabled after consecutive failures",
		"subscription_id", sub.ID,
		"name", sub.Name,
		"window", d.window,
	)

	if d.notifier != nil {
		if err := d.notifier.SubscriptionDisabled(ctx, sub); err != nil {
			d.logger.Error("failed to send disablement notice",
				"subscription_id", sub.ID,
				"error", err,
			)
		}
	}
}

// flattenHeaders folds repeated header values into one comma-joined entry so
// multi-valued headers survive the JSONB round trip.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
