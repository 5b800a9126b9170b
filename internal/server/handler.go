package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"payment-webhook-service/internal/apperror"
	"payment-webhook-service/internal/audit"
	"payment-webhook-service/internal/event"
	"payment-webhook-service/internal/logcontext"
	"payment-webhook-service/internal/ratelimit"
	"payment-webhook-service/internal/signature"
	"payment-webhook-service/internal/webhook"
)

const defaultMaxBodyBytes = 1 << 20

type WebhookHandler struct {
	verifier     *signature.Verifier
	processor    *webhook.Processor
	limiter      *ratelimit.Limiter
	auditor      *audit.Logger
	logger       *slog.Logger
	maxBodyBytes int64
}

func NewWebhookHandler(verifier *signature.Verifier, processor *webhook.Processor, limiter *ratelimit.Limiter,
	auditor *audit.Logger, logger *slog.Logger, maxBodyBytes int64) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &WebhookHandler{
		verifier:     verifier,
		processor:    processor,
		limiter:      limiter,
		auditor:      auditor,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

func NewMux(h *WebhookHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("POST /webhooks/payment-events", h)
	return mux
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := logcontext.AppendCtx(r.Context(), slog.String("correlationId", correlationID))

	if h.limiter != nil {
		if ok, retryAfter := h.limiter.Allow(sourceKey(r)); !ok {
			appErr := apperror.New(apperror.RateLimited).
				WithRetryAfter(retryAfter).
				WithCorrelationID(correlationID)
			h.auditor.RecordError(ctx, appErr, "")
			h.respond(w, appErr)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		appErr := apperror.Wrap(apperror.InvalidPayload, err).WithCorrelationID(correlationID)
		h.auditor.RecordError(ctx, appErr, "")
		h.respond(w, appErr)
		return
	}

	if appErr := h.verifier.Verify(body, r.Header.Get("Signature")); appErr != nil {
		appErr = appErr.WithCorrelationID(correlationID)
		h.auditor.RecordSecurityViolation(ctx, appErr, r.RemoteAddr)
		h.respond(w, appErr)
		return
	}

	env, appErr := event.Decode(body)
	if appErr != nil {
		appErr = appErr.WithCorrelationID(correlationID)
		h.auditor.RecordError(ctx, appErr, "")
		h.respond(w, appErr)
		return
	}

	outcome, appErr := h.processor.Process(ctx, env, correlationID)
	if appErr != nil {
		h.auditor.RecordError(ctx, appErr, env.ID)
		h.respond(w, appErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":         string(outcome),
		"correlation_id": correlationID,
	})
}

type errorResponse struct {
	ErrorCode     string         `json:"error_code"`
	Message       string         `json:"message"`
	CorrelationID string         `json:"correlation_id"`
	RetryAfter    int            `json:"retry_after,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// respond writes the structured error. Only the safe user message and
// sanitized details ever reach the caller.
func (h *WebhookHandler) respond(w http.ResponseWriter, appErr *apperror.Error) {
	if appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		ErrorCode:     appErr.Code.Name,
		Message:       appErr.UserMessage,
		CorrelationID: appErr.CorrelationID,
		RetryAfter:    appErr.RetryAfter,
		Details:       appErr.SanitizedDetails(),
	})
}

func sourceKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
