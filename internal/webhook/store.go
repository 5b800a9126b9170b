package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"

	"payment-webhook-service/internal/model"
)

// ClaimResult reports whether the caller owns processing of an event.
type ClaimResult int

const (
	// ClaimAcquired means the event id was inserted (or a previously failed
	// attempt was re-claimed) and the caller must process it.
	ClaimAcquired ClaimResult = iota
	// ClaimDuplicate means another delivery already applied, ignored or is
	// currently processing this event id.
	ClaimDuplicate
)

// Tx is the set of record operations available inside one transaction.
// Lookups return (nil, nil) when the record does not exist.
type Tx interface {
	// ClaimEvent atomically inserts the event if absent. On conflict the
	// existing row decides: applied/ignored/processing are duplicates, a
	// failed row is re-claimed for retry. The uniqueness constraint on the
	// event id is the sole concurrency-control primitive.
	ClaimEvent(ctx context.Context, ev *model.WebhookEvent) (ClaimResult, error)
	MarkEventProcessed(ctx context.Context, eventID string, status model.EventStatus, processedAt time.Time) error

	PaymentByExternalID(ctx context.Context, externalID string) (*model.Payment, error)
	UpdatePayment(ctx context.Context, payment *model.Payment) error

	AppointmentByPaymentID(ctx context.Context, paymentID uuid.UUID) (*model.Appointment, error)
	UpdateAppointment(ctx context.Context, appointment *model.Appointment) error

	PayoutByExternalID(ctx context.Context, externalID string) (*model.Payout, error)
	UpdatePayout(ctx context.Context, payout *model.Payout) error
}

// Store runs the webhook pipeline's record operations. A non-nil error from
// fn rolls the transaction back entirely.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// MarkEventFailed records a failed processing attempt outside the rolled
	// back transaction so the provider's redelivery can retry it. It must not
	// overwrite an event another delivery has since applied.
	MarkEventFailed(ctx context.Context, ev *model.WebhookEvent, procErr string) error
}
