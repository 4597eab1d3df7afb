// This file implements the gateway webhook endpoint. It is called directly
// by the payment gateway and is not behind any auth; the contract is
// fire-and-forget: the gateway always receives 200 "success" so it never
// enters a retry storm. Internal failures are logged and dead-lettered.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"subhub/internal/types"
)

// maxWebhookBodySize caps the gateway webhook payload (64 KB). Subscription
// event payloads are small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// StatusApplier is the subset of the billing ledger the webhook needs.
type StatusApplier interface {
	ApplyStatusEvent(ctx context.Context, event *types.GatewayEvent) error
}

// DeadLetterPublisher is the side channel for events whose processing failed
// after the gateway was acknowledged.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, letter types.WebhookDeadLetter) error
}

// GatewayWebhookHandler handles asynchronous subscription status events.
type GatewayWebhookHandler struct {
	applier    StatusApplier
	deadLetter DeadLetterPublisher
	logger     *slog.Logger
}

// NewGatewayWebhookHandler creates a GatewayWebhookHandler. deadLetter may be
// nil; failures are then only logged.
func NewGatewayWebhookHandler(applier StatusApplier, deadLetter DeadLetterPublisher, logger *slog.Logger) *GatewayWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewayWebhookHandler{
		applier:    applier,
		deadLetter: deadLetter,
		logger:     logger,
	}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *GatewayWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/updateSubscriptionStatusWebhook", h.Handle)
}

// Handle processes a gateway status event. Every exit path acknowledges with
// 200 "success"; nothing that happens here is allowed to surface to the
// gateway.
func (h *GatewayWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body", "error", err)
		h.publishDeadLetter(ctx, types.WebhookDeadLetter{
			Reason:   "unreadable body: " + err.Error(),
			FailedAt: time.Now().UTC(),
		})
		h.acknowledge(w)
		return
	}

	var event types.GatewayEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.WarnContext(ctx, "failed to parse webhook payload", "error", err)
		h.publishDeadLetter(ctx, types.WebhookDeadLetter{
			Reason:   "malformed payload: " + err.Error(),
			Payload:  payload,
			FailedAt: time.Now().UTC(),
		})
		h.acknowledge(w)
		return
	}

	if err := h.applier.ApplyStatusEvent(ctx, &event); err != nil {
		h.logger.ErrorContext(ctx, "webhook event processing failed",
			"event", event.Event,
			"subscription_id", event.Payload.Subscription.ID,
			"status", string(event.Payload.Subscription.Status),
			"error", err,
		)
		h.publishDeadLetter(ctx, types.WebhookDeadLetter{
			SubscriptionID: event.Payload.Subscription.ID,
			Status:         string(event.Payload.Subscription.Status),
			Reason:         err.Error(),
			Payload:        payload,
			FailedAt:       time.Now().UTC(),
		})
	}

	h.acknowledge(w)
}

// acknowledge writes the fixed success response the gateway expects.
func (h *GatewayWebhookHandler) acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("success"))
}

// publishDeadLetter is best-effort; a publish failure is itself only logged.
func (h *GatewayWebhookHandler) publishDeadLetter(ctx context.Context, letter types.WebhookDeadLetter) {
	if h.deadLetter == nil {
		return
	}
	if err := h.deadLetter.Publish(ctx, letter); err != nil {
		h.logger.ErrorContext(ctx, "failed to publish webhook dead letter",
			"subscription_id", letter.SubscriptionID,
			"error", err,
		)
	}
}
