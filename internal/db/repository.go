package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"payment-webhook-service/internal/model"
	"payment-webhook-service/internal/webhook"
)

const DefaultEventTable = "webhook_event"

// Repository is the pgx-backed record store for the webhook pipeline. The
// event table name is injected so deployments can point the idempotency store
// at their own table.
type Repository struct {
	pool       *pgxpool.Pool
	eventTable string
}

func NewRepository(pool *pgxpool.Pool, eventTable string) *Repository {
	if eventTable == "" {
		eventTable = DefaultEventTable
	}
	return &Repository{pool: pool, eventTable: eventTable}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx webhook.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}

	if err := fn(ctx, &txn{tx: tx, eventTable: r.eventTable}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}

// MarkEventFailed upserts the failed marker outside the rolled back
// transaction. The WHERE guard keeps it from clobbering an event a concurrent
// delivery has since applied.
func (r *Repository) MarkEventFailed(ctx context.Context, ev *model.WebhookEvent, procErr string) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, type, status, correlation_id, received_at, error)
	          VALUES ($1, $2, 'failed', $3, $4, $5)
	          ON CONFLICT (id) DO UPDATE SET status = 'failed', error = EXCLUDED.error
	          WHERE %s.status = 'processing'`, r.eventTable, r.eventTable)
	_, err := r.pool.Exec(ctx, query, ev.ID, ev.Type, ev.CorrelationID, ev.ReceivedAt, procErr)
	return errors.Wrap(err, "marking event failed")
}

type txn struct {
	tx         pgx.Tx
	eventTable string
}

func (t *txn) ClaimEvent(ctx context.Context, ev *model.WebhookEvent) (webhook.ClaimResult, error) {
	insert := fmt.Sprintf(`INSERT INTO %s (id, type, status, correlation_id, received_at)
	          VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`, t.eventTable)
	tag, err := t.tx.Exec(ctx, insert, ev.ID, ev.Type, ev.Status, ev.CorrelationID, ev.ReceivedAt)
	if err != nil {
		return 0, errors.Wrap(err, "inserting webhook event")
	}
	if tag.RowsAffected() == 1 {
		return webhook.ClaimAcquired, nil
	}

	var status model.EventStatus
	sel := fmt.Sprintf(`SELECT status FROM %s WHERE id = $1 FOR UPDATE`, t.eventTable)
	if err := t.tx.QueryRow(ctx, sel, ev.ID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return webhook.ClaimDuplicate, nil
		}
		return 0, errors.Wrap(err, "selecting webhook event status")
	}

	if status == model.EventStatusFailed || status == model.EventStatusReceived {
		upd := fmt.Sprintf(`UPDATE %s SET status = $1, correlation_id = $2, error = NULL WHERE id = $3`, t.eventTable)
		if _, err := t.tx.Exec(ctx, upd, model.EventStatusProcessing, ev.CorrelationID, ev.ID); err != nil {
			return 0, errors.Wrap(err, "reclaiming webhook event")
		}
		return webhook.ClaimAcquired, nil
	}

	return webhook.ClaimDuplicate, nil
}

func (t *txn) MarkEventProcessed(ctx context.Context, eventID string, status model.EventStatus, processedAt time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1, processed_at = $2, error = NULL WHERE id = $3`, t.eventTable)
	_, err := t.tx.Exec(ctx, query, status, processedAt, eventID)
	return errors.Wrap(err, "marking event processed")
}

func (t *txn) PaymentByExternalID(ctx context.Context, externalID string) (*model.Payment, error) {
	query := `SELECT id, external_id, charge_id, amount, currency, status, failure_reason, dispute_status, dispute_reason, created_at, updated_at
	          FROM payment WHERE external_id = $1 FOR UPDATE`
	row := t.tx.QueryRow(ctx, query, externalID)

	var p model.Payment
	err := row.Scan(&p.ID, &p.ExternalID, &p.ChargeID, &p.Amount, &p.Currency, &p.Status,
		&p.FailureReason, &p.DisputeStatus, &p.DisputeReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "selecting payment")
	}
	return &p, nil
}

func (t *txn) UpdatePayment(ctx context.Context, payment *model.Payment) error {
	query := `UPDATE payment SET charge_id = $1, status = $2, failure_reason = $3, dispute_status = $4, dispute_reason = $5, updated_at = now()
	          WHERE id = $6`
	_, err := t.tx.Exec(ctx, query, payment.ChargeID, payment.Status, payment.FailureReason,
		payment.DisputeStatus, payment.DisputeReason, payment.ID)
	return errors.Wrap(err, "updating payment")
}

func (t *txn) AppointmentByPaymentID(ctx context.Context, paymentID uuid.UUID) (*model.Appointment, error) {
	query := `SELECT id, payment_id, status, created_at, updated_at FROM appointment WHERE payment_id = $1 FOR UPDATE`
	row := t.tx.QueryRow(ctx, query, paymentID)

	var a model.Appointment
	err := row.Scan(&a.ID, &a.PaymentID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "selecting appointment")
	}
	return &a, nil
}

func (t *txn) UpdateAppointment(ctx context.Context, appointment *model.Appointment) error {
	query := `UPDATE appointment SET status = $1, updated_at = now() WHERE id = $2`
	_, err := t.tx.Exec(ctx, query, appointment.Status, appointment.ID)
	return errors.Wrap(err, "updating appointment")
}

func (t *txn) PayoutByExternalID(ctx context.Context, externalID string) (*model.Payout, error) {
	query := `SELECT id, external_id, amount, currency, status, failure_reason, paid_at, created_at, updated_at
	          FROM payout WHERE external_id = $1 FOR UPDATE`
	row := t.tx.QueryRow(ctx, query, externalID)

	var p model.Payout
	err := row.Scan(&p.ID, &p.ExternalID, &p.Amount, &p.Currency, &p.Status, &p.FailureReason,
		&p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "selecting payout")
	}
	return &p, nil
}

func (t *txn) UpdatePayout(ctx context.Context, payout *model.Payout) error {
	query := `UPDATE payout SET status = $1, failure_reason = $2, paid_at = $3, updated_at = now() WHERE id = $4`
	_, err := t.tx.Exec(ctx, query, payout.Status, payout.FailureReason, payout.PaidAt, payout.ID)
	return errors.Wrap(err, "updating payout")
}
