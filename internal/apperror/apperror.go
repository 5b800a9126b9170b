package apperror

import (
	"fmt"
	"net/http"
)

// Code identifies one failure class. Numeric values are grouped into bands:
// 1xxx authentication/authorization, 2xxx validation, 3xxx business-logic
// conflicts, 4xxx provider/upstream, 5xxx rate limiting, 6xxx infrastructure,
// 7xxx security violations.
type Code struct {
	Num         int
	Name        string
	HTTPStatus  int
	internalMsg string
	userMsg     string
}

var (
	AuthenticationFailed = Code{1001, "AUTHENTICATION_FAILED", http.StatusBadRequest,
		"webhook signature verification failed", "invalid request signature"}
	AuthorizationDenied = Code{1002, "AUTHORIZATION_DENIED", http.StatusUnauthorized,
		"caller is not authorized for this resource", "not authorized"}

	InvalidPayload = Code{2001, "INVALID_PAYLOAD", http.StatusBadRequest,
		"request payload could not be parsed", "invalid request payload"}
	ValidationFailed = Code{2002, "VALIDATION_FAILED", http.StatusBadRequest,
		"request payload failed validation", "invalid request payload"}

	BusinessLogicConflict = Code{3001, "BUSINESS_LOGIC_CONFLICT", http.StatusConflict,
		"requested state transition violates business rules", "the operation conflicts with the current state"}

	CardDeclined = Code{4001, "CARD_DECLINED", http.StatusPaymentRequired,
		"card was declined by the payment provider", "the card was declined"}
	CardExpired = Code{4002, "CARD_EXPIRED", http.StatusPaymentRequired,
		"card is expired", "the card has expired"}
	CardCVCFailed = Code{4003, "CARD_CVC_FAILED", http.StatusPaymentRequired,
		"card CVC check failed", "the card security code could not be verified"}
	InsufficientFunds = Code{4004, "INSUFFICIENT_FUNDS", http.StatusPaymentRequired,
		"card has insufficient funds", "the card has insufficient funds"}
	ProviderUnavailable = Code{4005, "PROVIDER_UNAVAILABLE", http.StatusBadGateway,
		"payment provider is unavailable", "the payment provider is temporarily unavailable"}

	RateLimited = Code{5001, "RATE_LIMITED", http.StatusTooManyRequests,
		"request rate limit exceeded", "too many requests, slow down"}

	InternalError = Code{6001, "INTERNAL_ERROR", http.StatusInternalServerError,
		"unexpected internal failure", "a temporary error occurred, please retry"}

	SecurityViolation = Code{7001, "SECURITY_VIOLATION", http.StatusForbidden,
		"request rejected for security reasons", "request rejected"}
)

// Severity of an error as recorded by the audit logger.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Error is the single structured error value surfaced at the HTTP boundary.
// Internal holds context that must never reach the caller; UserMessage is
// safe for external exposure.
type Error struct {
	Code          Code
	Internal      string
	UserMessage   string
	CorrelationID string
	RetryAfter    int
	Details       map[string]any
	cause         error
}

func New(code Code) *Error {
	return &Error{
		Code:        code,
		Internal:    code.internalMsg,
		UserMessage: code.userMsg,
	}
}

func Wrap(code Code, cause error) *Error {
	e := New(code)
	e.cause = cause
	if cause != nil {
		e.Internal = fmt.Sprintf("%s: %v", code.internalMsg, cause)
	}
	return e
}

func Newf(code Code, format string, args ...any) *Error {
	e := New(code)
	e.Internal = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code.Name, e.Code.Num, e.Internal)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithUserMessage overrides the safe user-facing message. The code's HTTP and
// semantic contract is unchanged.
func (e *Error) WithUserMessage(msg string) *Error {
	e.UserMessage = msg
	return e
}

func (e *Error) WithCorrelationID(id string) *Error {
	e.CorrelationID = id
	return e
}

func (e *Error) WithRetryAfter(seconds int) *Error {
	e.RetryAfter = seconds
	return e
}

func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func (e *Error) WithDetails(details map[string]any) *Error {
	for k, v := range details {
		e.WithDetail(k, v)
	}
	return e
}

// Severity derives the audit severity from the error's band and HTTP status:
// authentication and security bands are critical, 5xx is error, the rest is
// warning.
func (e *Error) Severity() Severity {
	band := e.Code.Num / 1000
	switch {
	case band == 1 || band == 7:
		return SeverityCritical
	case e.Code.HTTPStatus >= 500:
		return SeverityError
	default:
		return SeverityWarning
	}
}

// SanitizedDetails returns the detail map with denylisted keys redacted and
// card-like numbers masked. Safe for logging and for the response body.
func (e *Error) SanitizedDetails() map[string]any {
	if len(e.Details) == 0 {
		return nil
	}
	return Sanitize(e.Details)
}

const defaultRetryAfterSeconds = 30

// FromError collapses an arbitrary failure into a structured error. Already
// classified errors pass through untouched; anything else (datastore errors,
// panics recovered upstream) becomes INTERNAL_ERROR with a retry hint, and
// the original error text survives only in the internal message.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*Error); ok {
		return appErr
	}
	return Wrap(InternalError, err).WithRetryAfter(defaultRetryAfterSeconds)
}

// ClassifyDecline maps a provider decline code to the matching provider-band
// code, so "card expired" and "CVC failed" stay distinguishable from a
// generic decline.
func ClassifyDecline(declineCode string) Code {
	switch declineCode {
	case "expired_card":
		return CardExpired
	case "incorrect_cvc", "invalid_cvc":
		return CardCVCFailed
	case "insufficient_funds":
		return InsufficientFunds
	default:
		return CardDeclined
	}
}
