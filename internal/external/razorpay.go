package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"subhub/internal/types"
)

// razorpayAPIBase is the default Razorpay API base URL.
// Overridable in tests via RazorpayClientConfig.BaseURL.
const razorpayAPIBase = "https://api.razorpay.com"

// Fixed subscription parameters. Every subscription is created with a single
// unit, twelve billing cycles, and a 30-day trial before the first charge.
const (
	subscriptionQuantity   = 1
	subscriptionCycleCount = 12
	trialPeriod            = 30 * 24 * time.Hour
)

// scheduleChangeNow is the gateway's immediate-effect policy for plan changes.
const scheduleChangeNow = "now"

// defaultCurrency is the settlement currency for orders and add-ons.
const defaultCurrency = "INR"

// RazorpayClientConfig holds the configuration for creating a RazorpayClient.
type RazorpayClientConfig struct {
	KeyID     string
	KeySecret types.SecretString
	BaseURL   string // Override for testing; defaults to razorpayAPIBase
	Logger    *slog.Logger
}

// RazorpayClient talks to the Razorpay REST API through BaseClient so every
// call inherits the platform's resilience behavior (circuit breaker, retries,
// error mapping). It implements the billing.Gateway contract.
type RazorpayClient struct {
	base      *BaseClient
	keyID     string
	keySecret types.SecretString
	baseURL   string
	logger    *slog.Logger
	nowFn     func() time.Time // injectable clock for deterministic start_at in tests
}

// RazorpayClientOption is a functional option for configuring a RazorpayClient.
type RazorpayClientOption func(*RazorpayClient)

// WithClock overrides the clock used to compute subscription start times.
func WithClock(fn func() time.Time) RazorpayClientOption {
	return func(c *RazorpayClient) {
		c.nowFn = fn
	}
}

// NewRazorpayClient creates a RazorpayClient with a fresh BaseClient.
func NewRazorpayClient(httpClient *http.Client, cfg RazorpayClientConfig, opts ...RazorpayClientOption) *RazorpayClient {
	base := NewBaseClient(
		httpClient,
		"razorpay",
		DefaultRetryPolicy(),
		"SubHub/1.0",
	)
	return NewRazorpayClientWithBase(base, cfg, opts...)
}

// NewRazorpayClientWithBase creates a RazorpayClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration.
func NewRazorpayClientWithBase(base *BaseClient, cfg RazorpayClientConfig, opts ...RazorpayClientOption) *RazorpayClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = razorpayAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &RazorpayClient{
		base:      base,
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
		nowFn:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ---------------------------------------------------------------------------
// billing.Gateway Implementation
// ---------------------------------------------------------------------------

// createSubscriptionRequest is the JSON body for POST /v1/subscriptions.
type createSubscriptionRequest struct {
	PlanID         string     `json:"plan_id"`
	CustomerNotify int        `json:"customer_notify"`
	NotifyInfo     notifyInfo `json:"notify_info"`
	Quantity       int        `json:"quantity"`
	TotalCount     int        `json:"total_count"`
	StartAt        int64      `json:"start_at"`
}

type notifyInfo struct {
	NotifyPhone string `json:"notify_phone"`
	NotifyEmail string `json:"notify_email"`
}

// CreateSubscription creates a subscription on the given plan with customer
// notification enabled, quantity 1, 12 billing cycles, and a start time 30
// days in the future (the free-trial window), expressed as a Unix timestamp.
func (c *RazorpayClient) CreateSubscription(ctx context.Context, planID, phone, email string) (*types.Subscription, error) {
	body := createSubscriptionRequest{
		PlanID:         planID,
		CustomerNotify: 1,
		NotifyInfo: notifyInfo{
			NotifyPhone: phone,
			NotifyEmail: email,
		},
		Quantity:   subscriptionQuantity,
		TotalCount: subscriptionCycleCount,
		StartAt:    c.nowFn().Add(trialPeriod).Unix(),
	}

	var sub types.Subscription
	if err := c.doJSON(ctx, http.MethodPost, "/v1/subscriptions", body, &sub, "CreateSubscription"); err != nil {
		return nil, err
	}
	return &sub, nil
}

// updateSubscriptionRequest is the JSON body for PATCH /v1/subscriptions/{id}.
type updateSubscriptionRequest struct {
	PlanID           string `json:"plan_id"`
	ScheduleChangeAt string `json:"schedule_change_at"`
}

// UpdateSubscription switches an existing subscription to a new plan with an
// immediate-effect change policy.
func (c *RazorpayClient) UpdateSubscription(ctx context.Context, subscriptionID, newPlanID string) (*types.Subscription, error) {
	body := updateSubscriptionRequest{
		PlanID:           newPlanID,
		ScheduleChangeAt: scheduleChangeNow,
	}

	var sub types.Subscription
	path := "/v1/subscriptions/" + subscriptionID
	if err := c.doJSON(ctx, http.MethodPatch, path, body, &sub, "UpdateSubscription"); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CancelSubscription cancels the subscription immediately and returns the
// gateway's view of the cancelled resource.
func (c *RazorpayClient) CancelSubscription(ctx context.Context, subscriptionID string) (*types.Subscription, error) {
	var sub types.Subscription
	path := "/v1/subscriptions/" + subscriptionID + "/cancel"
	if err := c.doJSON(ctx, http.MethodPost, path, struct{}{}, &sub, "CancelSubscription"); err != nil {
		return nil, err
	}
	return &sub, nil
}

// createAddOnRequest is the JSON body for POST /v1/subscriptions/{id}/addons.
type createAddOnRequest struct {
	Item     types.AddOnItem `json:"item"`
	Quantity int             `json:"quantity"`
}

// CreateAddOn attaches a one-time add-on charge to the subscription.
// The amount is already in the currency's minor unit.
func (c *RazorpayClient) CreateAddOn(ctx context.Context, subscriptionID string, item types.AddOnItem) (*types.AddOn, error) {
	if item.Currency == "" {
		item.Currency = defaultCurrency
	}
	body := createAddOnRequest{
		Item:     item,
		Quantity: subscriptionQuantity,
	}

	var addOn types.AddOn
	path := "/v1/subscriptions/" + subscriptionID + "/addons"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &addOn, "CreateAddOn"); err != nil {
		return nil, err
	}
	return &addOn, nil
}

// createOrderRequest is the JSON body for POST /v1/orders.
type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder creates a standalone order for immediate payment collection.
// The amount is already in the currency's minor unit. The note ends up under
// notes.msg, matching what the payment popup displays.
func (c *RazorpayClient) CreateOrder(ctx context.Context, amount int64, note string) (*types.Order, error) {
	body := createOrderRequest{
		Amount:   amount,
		Currency: defaultCurrency,
		Notes:    map[string]string{"msg": note},
	}

	var order types.Order
	if err := c.doJSON(ctx, http.MethodPost, "/v1/orders", body, &order, "CreateOrder"); err != nil {
		return nil, err
	}
	return &order, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doJSON performs an authenticated request with a JSON body, decodes a 2xx
// response into out, and maps everything else to an AppError.
func (c *RazorpayClient) doJSON(ctx context.Context, method, path string, in, out any, operation string) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("%s: failed to encode request body", operation),
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("%s: failed to build request", operation),
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		return c.wrapGatewayError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp, operation)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("%s: failed to decode gateway response", operation),
			err,
		)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// razorpayErrorResponse represents the JSON error body returned by the gateway.
type razorpayErrorResponse struct {
	Error razorpayErrorBody `json:"error"`
}

type razorpayErrorBody struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
	Step        string `json:"step,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Field       string `json:"field,omitempty"`
}

// handleErrorResponse reads a gateway error response and maps it to a
// types.AppError carrying the gateway's error description, which the API
// layer appends to its 500 responses.
func (c *RazorpayClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamRazorpay,
			fmt.Sprintf("%s: gateway returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var gatewayErr razorpayErrorResponse
	if jsonErr := json.Unmarshal(body, &gatewayErr); jsonErr != nil || gatewayErr.Error.Description == "" {
		return types.NewAppError(
			types.ErrCodeUpstreamRazorpay,
			fmt.Sprintf("%s: gateway returned status %d", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamRazorpay,
		fmt.Sprintf("%s: %s", operation, gatewayErr.Error.Description),
		nil,
		map[string]any{
			"gateway_code":   gatewayErr.Error.Code,
			"gateway_reason": gatewayErr.Error.Reason,
		},
	)
}

// wrapGatewayError wraps a BaseClient transport error with operation context.
func (c *RazorpayClient) wrapGatewayError(operation string, err error) error {
	// BaseClient errors (circuit breaker, retries exhausted) already carry
	// the right upstream error code.
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return types.NewAppError(
		types.ErrCodeUpstreamRazorpay,
		fmt.Sprintf("%s: gateway request failed", operation),
		err,
	)
}
