package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"subhub/internal/types"
)

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(w, r, http.StatusOK, map[string]string{"subscriptionUrl": "https://rzp.io/i/abc"})

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["subscriptionUrl"] != "https://rzp.io/i/abc" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestError_AppError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-1"))

	Error(w, r, types.NewAppError(types.ErrCodeNotFoundUser, "user doesn't exist", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", resp.StatusCode)
	}

	var body APIErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error.Code != string(types.ErrCodeNotFoundUser) {
		t.Errorf("expected code %s, got %s", types.ErrCodeNotFoundUser, body.Error.Code)
	}
	if body.Error.Message != "user doesn't exist" {
		t.Errorf("unexpected message: %q", body.Error.Message)
	}
	if body.Error.RequestID != "req-1" {
		t.Errorf("expected request id propagated, got %q", body.Error.RequestID)
	}
}

func TestError_WrappedAppError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	inner := types.NewAppError(types.ErrCodeValidationInvalidPlan, "invalid plan type", nil)
	Error(w, r, errors.Join(errors.New("handler context"), inner))

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 from the wrapped AppError, got %d", w.Result().StatusCode)
	}
}

func TestError_GenericErrorIsNotLeaked(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(w, r, errors.New("pgx: connection refused to 10.0.0.5"))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", resp.StatusCode)
	}

	var body APIErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if strings.Contains(body.Error.Message, "10.0.0.5") {
		t.Errorf("internal error detail leaked to client: %q", body.Error.Message)
	}
	if body.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("unexpected code: %s", body.Error.Code)
	}
}

func TestDecodeJSON_Success(t *testing.T) {
	body := strings.NewReader(`{"userId":"u1","amount":100}`)
	r := httptest.NewRequest(http.MethodPost, "/", body)
	w := httptest.NewRecorder()

	var dst struct {
		UserID string `json:"userId"`
		Amount int64  `json:"amount"`
	}
	if err := DecodeJSON(w, r, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.UserID != "u1" || dst.Amount != 100 {
		t.Errorf("unexpected decode result: %+v", dst)
	}
}

func TestDecodeJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed", `{"userId":`},
		{"unknown field", `{"bogus":true}`},
		{"two values", `{"userId":"u1"}{"userId":"u2"}`},
		{"type mismatch", `{"userId":5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var dst struct {
				UserID string `json:"userId"`
			}
			err := DecodeJSON(w, r, &dst)
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T", err)
			}
			if appErr.Code != types.ErrCodeValidationInvalidJSON {
				t.Errorf("expected code %s, got %s", types.ErrCodeValidationInvalidJSON, appErr.Code)
			}
			if appErr.HTTPStatus() != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", appErr.HTTPStatus())
			}
		})
	}
}
