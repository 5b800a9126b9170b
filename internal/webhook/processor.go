package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"payment-webhook-service/internal/apperror"
	"payment-webhook-service/internal/audit"
	"payment-webhook-service/internal/event"
	"payment-webhook-service/internal/model"
	"payment-webhook-service/internal/notify"
)

var (
	appliedCounter   = metrics.GetOrCreateCounter(`webhook_events_total{result="applied"}`)
	duplicateCounter = metrics.GetOrCreateCounter(`webhook_events_total{result="duplicate"}`)
	ignoredCounter   = metrics.GetOrCreateCounter(`webhook_events_total{result="ignored"}`)
	orphanCounter    = metrics.GetOrCreateCounter(`webhook_events_total{result="orphan"}`)
	failedCounter    = metrics.GetOrCreateCounter(`webhook_events_total{result="failed"}`)

	processDurationHistogram = metrics.GetOrCreateHistogram(`webhook_process_duration_milliseconds`)
)

// Outcome of one successfully acknowledged delivery.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Notifier queues customer-facing messages after the transaction commits.
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

// Processor applies one decoded event to domain state exactly once. The
// idempotency guard and the state update share a single transaction.
type Processor struct {
	store    Store
	notifier Notifier
	auditor  *audit.Logger
	logger   *slog.Logger
}

func NewProcessor(store Store, notifier Notifier, auditor *audit.Logger, logger *slog.Logger) *Processor {
	return &Processor{
		store:    store,
		notifier: notifier,
		auditor:  auditor,
		logger:   logger,
	}
}

// applyResult accumulates what a handler did so audit records and
// notifications can be emitted only after the commit.
type applyResult struct {
	status           model.EventStatus
	transitions      []audit.Transition
	notifications    []notify.Message
	providerFailures []*apperror.Error
}

func (p *Processor) Process(ctx context.Context, env event.Envelope, correlationID string) (Outcome, *apperror.Error) {
	startTime := time.Now()

	res := &applyResult{status: model.EventStatusIgnored}
	duplicate := false

	err := p.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		claim, err := tx.ClaimEvent(ctx, &model.WebhookEvent{
			ID:            env.ID,
			Type:          env.RawType,
			Status:        model.EventStatusProcessing,
			CorrelationID: correlationID,
			ReceivedAt:    time.Now(),
		})
		if err != nil {
			return err
		}
		if claim == ClaimDuplicate {
			duplicate = true
			return nil
		}

		if appErr := p.route(ctx, tx, env, correlationID, res); appErr != nil {
			return appErr
		}

		return tx.MarkEventProcessed(ctx, env.ID, res.status, time.Now())
	})

	processDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))

	if err != nil {
		failedCounter.Inc()
		p.markFailed(ctx, env, correlationID, err)
		return "", apperror.FromError(err).WithCorrelationID(correlationID)
	}

	if duplicate {
		duplicateCounter.Inc()
		p.logger.InfoContext(ctx, "Duplicate delivery acknowledged", "eventId", env.ID)
		return OutcomeDuplicate, nil
	}

	for _, t := range res.transitions {
		p.auditor.RecordTransition(ctx, t)
	}
	for _, provErr := range res.providerFailures {
		p.auditor.RecordError(ctx, provErr, env.ID)
	}
	for _, msg := range res.notifications {
		p.notifier.Dispatch(ctx, msg)
	}

	if res.status == model.EventStatusApplied {
		appliedCounter.Inc()
		return OutcomeApplied, nil
	}
	ignoredCounter.Inc()
	return OutcomeIgnored, nil
}

// route selects the handler for the event type. Unknown and known-but-
// unhandled types fall through to the ignored arm.
func (p *Processor) route(ctx context.Context, tx Tx, env event.Envelope, correlationID string, res *applyResult) *apperror.Error {
	switch env.Type {
	case event.TypePaymentSucceeded:
		return p.applyPaymentSucceeded(ctx, tx, env, correlationID, res)
	case event.TypePaymentFailed:
		return p.applyPaymentFailed(ctx, tx, env, correlationID, res)
	case event.TypeDisputeCreated:
		return p.applyDisputeCreated(ctx, tx, env, correlationID, res)
	case event.TypeTransferCreated:
		return p.applyTransferCreated(ctx, tx, env, correlationID, res)
	case event.TypeTransferFailed:
		return p.applyTransferFailed(ctx, tx, env, correlationID, res)
	default:
		p.logger.InfoContext(ctx, "Ignoring unhandled event type", "eventId", env.ID, "eventType", env.RawType)
		res.status = model.EventStatusIgnored
		return nil
	}
}

func (p *Processor) markFailed(ctx context.Context, env event.Envelope, correlationID string, procErr error) {
	ev := &model.WebhookEvent{
		ID:            env.ID,
		Type:          env.RawType,
		Status:        model.EventStatusFailed,
		CorrelationID: correlationID,
		ReceivedAt:    time.Now(),
	}
	if err := p.store.MarkEventFailed(ctx, ev, procErr.Error()); err != nil {
		p.logger.ErrorContext(ctx, "Error marking event failed", "eventId", env.ID, "error", err)
	}
}

// orphan acknowledges an event whose referenced record does not exist,
// logging it distinctly from ordinary duplicate no-ops.
func (p *Processor) orphan(ctx context.Context, env event.Envelope, refType, refID string, res *applyResult) {
	orphanCounter.Inc()
	p.logger.WarnContext(ctx, "Orphan event: referenced record not found",
		"eventId", env.ID,
		"eventType", env.RawType,
		"refType", refType,
		"refId", refID,
	)
	res.status = model.EventStatusIgnored
}
