// Package handlers contains the HTTP handler implementations for the
// subscription API. Handlers are thin translations between the wire contract
// and the billing ledger; all state-transition decisions live in the ledger.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"subhub/internal/billing"
	"subhub/internal/core"
	"subhub/internal/types"
)

// SubscriptionService is the subset of the billing ledger the user-facing
// endpoints need. Defined locally so tests can mock it without constructing
// a full ledger.
type SubscriptionService interface {
	CreateOrUpdate(ctx context.Context, userID string, plan types.PlanType) (string, error)
	CheckAndCancel(ctx context.Context, userID string) (billing.CancelOutcome, error)
	VerifyAndCancel(ctx context.Context, userID, orderID, paymentID, signature string) (billing.VerifyOutcome, error)
	AddOn(ctx context.Context, userID string, amount int64, notes string) (*types.AddOn, error)
}

// SubscriptionHandler serves the user-initiated subscription endpoints.
type SubscriptionHandler struct {
	service   SubscriptionService
	validator *core.Validator
	logger    *slog.Logger
}

// NewSubscriptionHandler creates a SubscriptionHandler.
func NewSubscriptionHandler(service SubscriptionService, validator *core.Validator, logger *slog.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if validator == nil {
		validator = core.NewValidator()
	}
	return &SubscriptionHandler{
		service:   service,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the subscription endpoints. Route names follow the
// front-end contract.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/createUpdateSubscription", h.CreateUpdateSubscription)
	r.Get("/checkAndCancelSubscription", h.CheckAndCancelSubscription)
	r.Post("/verifyPaymentAndCancelSubscription", h.VerifyPaymentAndCancelSubscription)
	r.Post("/subscriptionAddOns", h.SubscriptionAddOns)
}

// --- Request/Response Models ---

type subscriptionURLResponse struct {
	SubscriptionURL string `json:"subscriptionUrl"`
}

type cancelMessageResponse struct {
	Msg string `json:"msg"`
}

type cancelOrderResponse struct {
	OrderID string `json:"orderId"`
}

// verifyPaymentRequest mirrors the checkout widget's callback payload.
type verifyPaymentRequest struct {
	Response verifyPaymentFields `json:"response" validate:"required"`
}

type verifyPaymentFields struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

type verifyPaymentResponse struct {
	SuccessMsg string `json:"successMsg,omitempty"`
	ErrorMsg   string `json:"errorMsg,omitempty"`
	Success    bool   `json:"success"`
}

type addOnRequest struct {
	UserID string `json:"userId" validate:"required"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Notes  string `json:"notes"`
}

// --- Handlers ---

// CreateUpdateSubscription handles GET /v1/createUpdateSubscription.
// Query parameters: userId, planType (1 or 2). Responds with the gateway's
// short payment url for the front-end redirect.
func (h *SubscriptionHandler) CreateUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"userId query parameter is required",
			nil,
		))
		return
	}

	planRaw := r.URL.Query().Get("planType")
	planValue, err := strconv.Atoi(planRaw)
	if err != nil || !types.PlanType(planValue).Valid() {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidPlan,
			"planType must be 1 or 2",
			err,
		))
		return
	}

	url, err := h.service.CreateOrUpdate(r.Context(), userID, types.PlanType(planValue))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, subscriptionURLResponse{SubscriptionURL: url})
}

// CheckAndCancelSubscription handles GET /v1/checkAndCancelSubscription.
// Responds with a success message when the subscription was cancelled
// immediately, or with the dues order id when payment must be collected
// first.
func (h *SubscriptionHandler) CheckAndCancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"userId query parameter is required",
			nil,
		))
		return
	}

	outcome, err := h.service.CheckAndCancel(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if outcome.Cancelled {
		core.JSON(w, r, http.StatusOK, cancelMessageResponse{Msg: outcome.Message})
		return
	}
	core.JSON(w, r, http.StatusOK, cancelOrderResponse{OrderID: outcome.OrderID})
}

// VerifyPaymentAndCancelSubscription handles POST /v1/verifyPaymentAndCancelSubscription.
//
// Response contract:
//   - signature mismatch: 200 with success:false (the front-end widget
//     inspects the flag, not the status code)
//   - verified and cancelled: 200 with success:true
//   - verified but cancellation failed: 201 with success:true and an error
//     note. The payment already went through, so verification success must
//     not be reported as failure.
func (h *SubscriptionHandler) VerifyPaymentAndCancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"userId query parameter is required",
			nil,
		))
		return
	}

	var req verifyPaymentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	outcome, err := h.service.VerifyAndCancel(
		r.Context(), userID,
		req.Response.OrderID, req.Response.PaymentID, req.Response.Signature,
	)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if !outcome.Verified {
		core.JSON(w, r, http.StatusOK, verifyPaymentResponse{
			ErrorMsg: "payment verification failed",
			Success:  false,
		})
		return
	}

	if outcome.CancelErr != nil {
		h.logger.ErrorContext(r.Context(), "cancellation failed after verified payment",
			"user_id", userID,
			"order_id", req.Response.OrderID,
			"error", outcome.CancelErr,
		)
		core.JSON(w, r, http.StatusCreated, verifyPaymentResponse{
			SuccessMsg: "payment verified successfully",
			ErrorMsg:   "subscription cancellation could not be completed, please retry",
			Success:    true,
		})
		return
	}

	core.JSON(w, r, http.StatusOK, verifyPaymentResponse{
		SuccessMsg: "payment verified and subscription cancelled successfully",
		Success:    true,
	})
}

// SubscriptionAddOns handles POST /v1/subscriptionAddOns. Responds with the
// gateway's add-on object.
func (h *SubscriptionHandler) SubscriptionAddOns(w http.ResponseWriter, r *http.Request) {
	var req addOnRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	addOn, err := h.service.AddOn(r.Context(), req.UserID, req.Amount, req.Notes)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, addOn)
}
