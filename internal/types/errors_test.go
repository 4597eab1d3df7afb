package types

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidPlan, http.StatusBadRequest},
		{ErrCodeValidationNoSubscription, http.StatusBadRequest},
		{ErrCodeNotFoundUser, http.StatusBadRequest},
		{ErrCodeNotFoundSubscription, http.StatusBadRequest},
		{ErrCodeUpstreamRazorpay, http.StatusInternalServerError},
		{ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrCodePaymentVerification, http.StatusBadRequest},
		{ErrorCode("made_up_code"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	appErr := NewAppError(ErrCodeInternalDB, "failed to fetch user", inner)

	assert.Equal(t, "internal_database_error: failed to fetch user", appErr.Error())
	assert.True(t, errors.Is(appErr, inner))

	var target *AppError
	require.True(t, errors.As(error(appErr), &target))
	assert.Equal(t, ErrCodeInternalDB, target.Code)
}

func TestAppError_WithDetails(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeUpstreamRazorpay, "gateway rejected", nil,
		map[string]any{"gateway_code": "BAD_REQUEST_ERROR"})

	extended := base.WithDetails(map[string]any{"subscription_id": "sub_1"})

	// Original unchanged.
	assert.Len(t, base.Details, 1)
	assert.Equal(t, "BAD_REQUEST_ERROR", extended.Details["gateway_code"])
	assert.Equal(t, "sub_1", extended.Details["subscription_id"])
}
