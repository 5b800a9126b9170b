package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"

	"payment-webhook-service/internal/apperror"
)

var (
	securityViolationCounter = metrics.GetOrCreateCounter(`webhook_audit_total{kind="security_violation"}`)
	errorCounter             = metrics.GetOrCreateCounter(`webhook_audit_total{kind="error"}`)
	transitionCounter        = metrics.GetOrCreateCounter(`webhook_audit_total{kind="transition"}`)
	mirrorErrorCounter       = metrics.GetOrCreateCounter(`webhook_audit_mirror_total{result="error"}`)
)

const mirrorTimeout = 5 * time.Second

// Transition is one applied state change, recorded per affected record.
type Transition struct {
	EventID       string    `json:"eventId"`
	EventType     string    `json:"eventType"`
	RecordType    string    `json:"recordType"`
	RecordID      string    `json:"recordId"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	CorrelationID string    `json:"correlationId"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// MessageWriter is the subset of kafka.Writer the audit mirror needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Logger records classified errors, security events and applied transitions.
// Writes never include raw payloads or unredacted secrets; the Kafka mirror
// is best-effort and never blocks the caller.
type Logger struct {
	logger *slog.Logger
	writer MessageWriter
}

// New builds an audit logger. writer may be nil to disable the Kafka mirror.
func New(logger *slog.Logger, writer MessageWriter) *Logger {
	return &Logger{logger: logger, writer: writer}
}

func (l *Logger) RecordTransition(ctx context.Context, t Transition) {
	transitionCounter.Inc()

	l.logger.InfoContext(ctx, "State transition applied",
		"eventId", t.EventID,
		"eventType", t.EventType,
		"recordType", t.RecordType,
		"recordId", t.RecordID,
		"from", t.From,
		"to", t.To,
		"correlationId", t.CorrelationID,
	)

	l.mirror(t.RecordID, map[string]any{"kind": "transition", "transition": t})
}

func (l *Logger) RecordError(ctx context.Context, appErr *apperror.Error, eventID string) {
	errorCounter.Inc()

	attrs := []any{
		"code", appErr.Code.Name,
		"codeNum", appErr.Code.Num,
		"severity", string(appErr.Severity()),
		"httpStatus", appErr.Code.HTTPStatus,
		"correlationId", appErr.CorrelationID,
		"eventId", eventID,
		"internal", appErr.Internal,
	}
	if details := appErr.SanitizedDetails(); details != nil {
		attrs = append(attrs, "details", details)
	}

	switch appErr.Severity() {
	case apperror.SeverityWarning:
		l.logger.WarnContext(ctx, "Classified error", attrs...)
	default:
		l.logger.ErrorContext(ctx, "Classified error", attrs...)
	}

	l.mirror(eventID, map[string]any{
		"kind":          "error",
		"code":          appErr.Code.Name,
		"severity":      string(appErr.Severity()),
		"correlationId": appErr.CorrelationID,
		"eventId":       eventID,
		"details":       appErr.SanitizedDetails(),
	})
}

// RecordSecurityViolation logs a rejected request before the caller receives
// a response.
func (l *Logger) RecordSecurityViolation(ctx context.Context, appErr *apperror.Error, remoteAddr string) {
	securityViolationCounter.Inc()

	l.logger.ErrorContext(ctx, "Security violation",
		"code", appErr.Code.Name,
		"severity", string(apperror.SeverityCritical),
		"correlationId", appErr.CorrelationID,
		"remoteAddr", remoteAddr,
		"internal", appErr.Internal,
	)

	l.mirror(remoteAddr, map[string]any{
		"kind":          "security_violation",
		"code":          appErr.Code.Name,
		"correlationId": appErr.CorrelationID,
		"remoteAddr":    remoteAddr,
	})
}

func (l *Logger) mirror(key string, record map[string]any) {
	if l.writer == nil {
		return
	}

	value, err := json.Marshal(record)
	if err != nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()

		if err := l.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
			mirrorErrorCounter.Inc()
			l.logger.Error("Error mirroring audit record", "error", err)
		}
	}()
}
