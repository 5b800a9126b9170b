package apperror

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	appErr := New(InvalidPayload)

	assert.Equal(t, "INVALID_PAYLOAD", appErr.Code.Name)
	assert.Equal(t, http.StatusBadRequest, appErr.Code.HTTPStatus)
	assert.NotEmpty(t, appErr.Internal)
	assert.NotEmpty(t, appErr.UserMessage)
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	appErr := Wrap(InternalError, cause)

	assert.ErrorIs(t, appErr, cause)
	assert.Contains(t, appErr.Internal, "connection refused")
	// the cause never leaks into the user message
	assert.NotContains(t, appErr.UserMessage, "connection refused")
}

func TestWithUserMessage_KeepsContract(t *testing.T) {
	appErr := New(BusinessLogicConflict).WithUserMessage("this appointment was already paid")

	assert.Equal(t, "this appointment was already paid", appErr.UserMessage)
	assert.Equal(t, http.StatusConflict, appErr.Code.HTTPStatus)
	assert.Equal(t, 3001, appErr.Code.Num)
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		code Code
		want Severity
	}{
		{AuthenticationFailed, SeverityCritical},
		{SecurityViolation, SeverityCritical},
		{InvalidPayload, SeverityWarning},
		{BusinessLogicConflict, SeverityWarning},
		{RateLimited, SeverityWarning},
		{InternalError, SeverityError},
		{ProviderUnavailable, SeverityError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, New(tt.code).Severity(), tt.code.Name)
	}
}

func TestFromError(t *testing.T) {
	appErr := New(InvalidPayload)
	assert.Same(t, appErr, FromError(appErr))

	converted := FromError(errors.New("pq: connection reset"))
	assert.Equal(t, InternalError, converted.Code)
	assert.Equal(t, defaultRetryAfterSeconds, converted.RetryAfter)
	assert.Contains(t, converted.Internal, "connection reset")
	assert.Equal(t, "a temporary error occurred, please retry", converted.UserMessage)

	assert.Nil(t, FromError(nil))
}

func TestClassifyDecline(t *testing.T) {
	assert.Equal(t, CardExpired, ClassifyDecline("expired_card"))
	assert.Equal(t, CardCVCFailed, ClassifyDecline("incorrect_cvc"))
	assert.Equal(t, InsufficientFunds, ClassifyDecline("insufficient_funds"))
	assert.Equal(t, CardDeclined, ClassifyDecline("do_not_honor"))
	assert.Equal(t, CardDeclined, ClassifyDecline(""))
}

func TestWithDetail(t *testing.T) {
	appErr := New(CardDeclined).
		WithDetail("decline_code", "insufficient_funds").
		WithDetails(map[string]any{"attempt": 2})

	assert.Equal(t, "insufficient_funds", appErr.Details["decline_code"])
	assert.Equal(t, 2, appErr.Details["attempt"])
}
