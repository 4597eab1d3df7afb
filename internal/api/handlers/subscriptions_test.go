package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subhub/internal/billing"
	"subhub/internal/core"
	"subhub/internal/types"
)

// mockSubscriptionService implements SubscriptionService for testing.
type mockSubscriptionService struct {
	createOrUpdateFn  func(ctx context.Context, userID string, plan types.PlanType) (string, error)
	checkAndCancelFn  func(ctx context.Context, userID string) (billing.CancelOutcome, error)
	verifyAndCancelFn func(ctx context.Context, userID, orderID, paymentID, signature string) (billing.VerifyOutcome, error)
	addOnFn           func(ctx context.Context, userID string, amount int64, notes string) (*types.AddOn, error)
}

func (m *mockSubscriptionService) CreateOrUpdate(ctx context.Context, userID string, plan types.PlanType) (string, error) {
	if m.createOrUpdateFn != nil {
		return m.createOrUpdateFn(ctx, userID, plan)
	}
	return "https://rzp.io/i/test", nil
}

func (m *mockSubscriptionService) CheckAndCancel(ctx context.Context, userID string) (billing.CancelOutcome, error) {
	if m.checkAndCancelFn != nil {
		return m.checkAndCancelFn(ctx, userID)
	}
	return billing.CancelOutcome{Cancelled: true, Message: "cancelled"}, nil
}

func (m *mockSubscriptionService) VerifyAndCancel(ctx context.Context, userID, orderID, paymentID, signature string) (billing.VerifyOutcome, error) {
	if m.verifyAndCancelFn != nil {
		return m.verifyAndCancelFn(ctx, userID, orderID, paymentID, signature)
	}
	return billing.VerifyOutcome{Verified: true, Cancelled: true}, nil
}

func (m *mockSubscriptionService) AddOn(ctx context.Context, userID string, amount int64, notes string) (*types.AddOn, error) {
	if m.addOnFn != nil {
		return m.addOnFn(ctx, userID, amount, notes)
	}
	return &types.AddOn{ID: "ao_test", SubscriptionID: "sub_test"}, nil
}

func newTestRouter(svc SubscriptionService) http.Handler {
	h := NewSubscriptionHandler(svc, core.NewValidator(), slog.Default())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func decodeBody(t *testing.T, body io.Reader, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(body).Decode(dst), "failed to decode response body")
}

// --- CreateUpdateSubscription ---

func TestCreateUpdateSubscription_Success(t *testing.T) {
	var gotUser string
	var gotPlan types.PlanType
	svc := &mockSubscriptionService{
		createOrUpdateFn: func(_ context.Context, userID string, plan types.PlanType) (string, error) {
			gotUser, gotPlan = userID, plan
			return "https://rzp.io/i/abc", nil
		},
	}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/createUpdateSubscription?userId=u1&planType=2", nil))

	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	assert.Equal(t, "u1", gotUser)
	assert.Equal(t, types.PlanTypeService2, gotPlan)

	var body map[string]string
	decodeBody(t, w.Body, &body)
	assert.Equal(t, "https://rzp.io/i/abc", body["subscriptionUrl"])
}

func TestCreateUpdateSubscription_Validation(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing userId", "?planType=1"},
		{"missing planType", "?userId=u1"},
		{"planType not a number", "?userId=u1&planType=abc"},
		{"planType out of range", "?userId=u1&planType=3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockSubscriptionService{
				createOrUpdateFn: func(context.Context, string, types.PlanType) (string, error) {
					called = true
					return "", nil
				},
			}
			router := newTestRouter(svc)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/createUpdateSubscription"+tt.query, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, called, "service must not be called on validation failure")
		})
	}
}

func TestCreateUpdateSubscription_GatewayError(t *testing.T) {
	svc := &mockSubscriptionService{
		createOrUpdateFn: func(context.Context, string, types.PlanType) (string, error) {
			return "", types.NewAppError(types.ErrCodeUpstreamRazorpay, "CreateSubscription: plan rejected", nil)
		},
	}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/createUpdateSubscription?userId=u1&planType=1", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code, "gateway failures report as 500")

	var body core.APIErrorResponse
	decodeBody(t, w.Body, &body)
	assert.Equal(t, "CreateSubscription: plan rejected", body.Error.Message, "gateway detail surfaced")
}

func TestCreateUpdateSubscription_UnknownUser(t *testing.T) {
	svc := &mockSubscriptionService{
		createOrUpdateFn: func(context.Context, string, types.PlanType) (string, error) {
			return "", types.NewAppError(types.ErrCodeNotFoundUser, "user doesn't exist", nil)
		},
	}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/createUpdateSubscription?userId=ghost&planType=1", nil))

	// An unresolved user id is bad input from the caller, not a missing
	// resource: the clients were built against a 400 here.
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body core.APIErrorResponse
	decodeBody(t, w.Body, &body)
	assert.Equal(t, string(types.ErrCodeNotFoundUser), body.Error.Code)
	assert.Equal(t, "user doesn't exist", body.Error.Message)
}

// --- CheckAndCancelSubscription ---

func TestCheckAndCancelSubscription_Immediate(t *testing.T) {
	svc := &mockSubscriptionService{
		checkAndCancelFn: func(context.Context, string) (billing.CancelOutcome, error) {
			return billing.CancelOutcome{Cancelled: true, Message: "subscription cancelled successfully, no pending dues for the user"}, nil
		},
	}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkAndCancelSubscription?userId=u1", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	decodeBody(t, w.Body, &body)
	assert.NotEmpty(t, body["msg"])
	assert.NotContains(t, body, "orderId", "orderId must not be present on the immediate path")
}

func TestCheckAndCancelSubscription_PendingDues(t *testing.T) {
	svc := &mockSubscriptionService{
		checkAndCancelFn: func(context.Context, string) (billing.CancelOutcome, error) {
			return billing.CancelOutcome{OrderID: "order_42"}, nil
		},
	}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkAndCancelSubscription?userId=u1", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	decodeBody(t, w.Body, &body)
	assert.Equal(t, "order_42", body["orderId"])
}

func TestCheckAndCancelSubscription_MissingUserID(t *testing.T) {
	router := newTestRouter(&mockSubscriptionService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkAndCancelSubscription", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckAndCancelSubscription_NoSubscription(t *testing.T) {
	svc := &mockSubscriptionService{
		checkAndCancelFn: func(context.Context, string) (billing.CancelOutcome, error) {
			return billing.CancelOutcome{}, types.NewAppError(
				types.ErrCodeValidationNoSubscription,
				"no subscription details available for the user",
				nil,
			)
		},
	}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkAndCancelSubscription?userId=u1", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- VerifyPaymentAndCancelSubscription ---

func verifyBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	payload := map[string]any{
		"response": map[string]string{
			"razorpay_order_id":   "order_1",
			"razorpay_payment_id": "pay_1",
			"razorpay_signature":  "sig",
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewBuffer(raw)
}

func TestVerifyPayment_Success(t *testing.T) {
	var gotOrder, gotPayment, gotSignature string
	svc := &mockSubscriptionService{
		verifyAndCancelFn: func(_ context.Context, _, orderID, paymentID, signature string) (billing.VerifyOutcome, error) {
			gotOrder, gotPayment, gotSignature = orderID, paymentID, signature
			return billing.VerifyOutcome{Verified: true, Cancelled: true}, nil
		},
	}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/verifyPaymentAndCancelSubscription?userId=u1", verifyBody(t)))

	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	assert.Equal(t, "order_1", gotOrder)
	assert.Equal(t, "pay_1", gotPayment)
	assert.Equal(t, "sig", gotSignature)

	var body verifyPaymentResponse
	decodeBody(t, w.Body, &body)
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.SuccessMsg)
}

func TestVerifyPayment_SignatureMismatch(t *testing.T) {
	svc := &mockSubscriptionService{
		verifyAndCancelFn: func(context.Context, string, string, string, string) (billing.VerifyOutcome, error) {
			return billing.VerifyOutcome{Verified: false}, nil
		},
	}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/verifyPaymentAndCancelSubscription?userId=u1", verifyBody(t)))

	require.Equal(t, http.StatusOK, w.Code, "mismatch is reported in the body, not the status")

	var body verifyPaymentResponse
	decodeBody(t, w.Body, &body)
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.ErrorMsg)
}

func TestVerifyPayment_PartialSuccess(t *testing.T) {
	svc := &mockSubscriptionService{
		verifyAndCancelFn: func(context.Context, string, string, string, string) (billing.VerifyOutcome, error) {
			return billing.VerifyOutcome{
				Verified:  true,
				CancelErr: types.NewAppError(types.ErrCodeUpstreamRazorpay, "CancelSubscription: gateway down", nil),
			}, nil
		},
	}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/verifyPaymentAndCancelSubscription?userId=u1", verifyBody(t)))

	require.Equal(t, http.StatusCreated, w.Code, "201 on the verified-but-not-cancelled path")

	var body verifyPaymentResponse
	decodeBody(t, w.Body, &body)
	assert.True(t, body.Success, "verification success must still be reported")
	assert.NotEmpty(t, body.ErrorMsg, "expected a note about the failed cancellation")
}

func TestVerifyPayment_MissingFields(t *testing.T) {
	router := newTestRouter(&mockSubscriptionService{})

	payload := `{"response":{"razorpay_order_id":"order_1"}}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/verifyPaymentAndCancelSubscription?userId=u1", bytes.NewBufferString(payload)))

	assert.Equal(t, http.StatusBadRequest, w.Code, "missing signature fields rejected")
}

func TestVerifyPayment_MissingUserID(t *testing.T) {
	router := newTestRouter(&mockSubscriptionService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/verifyPaymentAndCancelSubscription", verifyBody(t)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- SubscriptionAddOns ---

func TestSubscriptionAddOns_Success(t *testing.T) {
	var gotUser, gotNotes string
	var gotAmount int64
	svc := &mockSubscriptionService{
		addOnFn: func(_ context.Context, userID string, amount int64, notes string) (*types.AddOn, error) {
			gotUser, gotAmount, gotNotes = userID, amount, notes
			return &types.AddOn{ID: "ao_9", SubscriptionID: "sub_1", Quantity: 1}, nil
		},
	}
	router := newTestRouter(svc)

	payload := `{"userId":"u1","amount":150,"notes":"extra views"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/subscriptionAddOns", bytes.NewBufferString(payload)))

	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	assert.Equal(t, "u1", gotUser)
	assert.Equal(t, int64(150), gotAmount)
	assert.Equal(t, "extra views", gotNotes)

	var body types.AddOn
	decodeBody(t, w.Body, &body)
	assert.Equal(t, "ao_9", body.ID, "gateway add-on object returned as-is")
}

func TestSubscriptionAddOns_Validation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"missing userId", `{"amount":100}`},
		{"missing amount", `{"userId":"u1"}`},
		{"non-positive amount", `{"userId":"u1","amount":-5}`},
		{"malformed body", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockSubscriptionService{
				addOnFn: func(context.Context, string, int64, string) (*types.AddOn, error) {
					called = true
					return nil, nil
				},
			}
			router := newTestRouter(svc)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/subscriptionAddOns", bytes.NewBufferString(tt.payload)))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, called, "service must not be called on validation failure")
		})
	}
}
