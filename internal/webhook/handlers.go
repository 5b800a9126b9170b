package webhook

import (
	"context"
	"time"

	"payment-webhook-service/internal/apperror"
	"payment-webhook-service/internal/audit"
	"payment-webhook-service/internal/event"
	"payment-webhook-service/internal/model"
	"payment-webhook-service/internal/notify"
)

func (p *Processor) applyPaymentSucceeded(ctx context.Context, tx Tx, env event.Envelope, correlationID string, res *applyResult) *apperror.Error {
	obj, appErr := env.PaymentIntent()
	if appErr != nil {
		return appErr
	}

	payment, err := tx.PaymentByExternalID(ctx, obj.ID)
	if err != nil {
		return apperror.FromError(err)
	}
	if payment == nil {
		p.orphan(ctx, env, "payment", obj.ID, res)
		return nil
	}

	if !payment.Status.CanTransitionTo(model.PaymentStatusCompleted) {
		return apperror.Newf(apperror.BusinessLogicConflict,
			"payment %s cannot move from %s to completed", payment.ExternalID, payment.Status).
			WithDetail("payment_status", string(payment.Status))
	}

	from := payment.Status
	payment.Status = model.PaymentStatusCompleted
	if obj.LatestCharge != "" {
		charge := obj.LatestCharge
		payment.ChargeID = &charge
	}
	if err := tx.UpdatePayment(ctx, payment); err != nil {
		return apperror.FromError(err)
	}
	res.transitions = append(res.transitions, p.transition(env, correlationID, "payment", payment.ExternalID, string(from), string(payment.Status)))

	appointment, err := tx.AppointmentByPaymentID(ctx, payment.ID)
	if err != nil {
		return apperror.FromError(err)
	}
	if appointment != nil && appointment.Status == model.AppointmentStatusPending {
		appointment.Status = model.AppointmentStatusConfirmed
		if err := tx.UpdateAppointment(ctx, appointment); err != nil {
			return apperror.FromError(err)
		}
		res.transitions = append(res.transitions, p.transition(env, correlationID, "appointment", appointment.ID.String(),
			string(model.AppointmentStatusPending), string(appointment.Status)))
		res.notifications = append(res.notifications, notify.Message{
			Type:          notify.TypeAppointmentConfirmed,
			PaymentID:     payment.ExternalID,
			AppointmentID: appointment.ID.String(),
			CorrelationID: correlationID,
			OccurredAt:    time.Now(),
		})
	}

	res.status = model.EventStatusApplied
	return nil
}

func (p *Processor) applyPaymentFailed(ctx context.Context, tx Tx, env event.Envelope, correlationID string, res *applyResult) *apperror.Error {
	obj, appErr := env.PaymentIntent()
	if appErr != nil {
		return appErr
	}

	payment, err := tx.PaymentByExternalID(ctx, obj.ID)
	if err != nil {
		return apperror.FromError(err)
	}
	if payment == nil {
		p.orphan(ctx, env, "payment", obj.ID, res)
		return nil
	}

	if !payment.Status.CanTransitionTo(model.PaymentStatusFailed) {
		return apperror.Newf(apperror.BusinessLogicConflict,
			"payment %s cannot move from %s to failed", payment.ExternalID, payment.Status).
			WithDetail("payment_status", string(payment.Status))
	}

	from := payment.Status
	payment.Status = model.PaymentStatusFailed
	if obj.LastPaymentError != nil && obj.LastPaymentError.Message != "" {
		reason := obj.LastPaymentError.Message
		payment.FailureReason = &reason
	}
	if err := tx.UpdatePayment(ctx, payment); err != nil {
		return apperror.FromError(err)
	}
	res.transitions = append(res.transitions, p.transition(env, correlationID, "payment", payment.ExternalID, string(from), string(payment.Status)))

	// classify the provider decline for the audit trail; the event itself is
	// still applied successfully
	if obj.LastPaymentError != nil && obj.LastPaymentError.DeclineCode != "" {
		code := apperror.ClassifyDecline(obj.LastPaymentError.DeclineCode)
		res.providerFailures = append(res.providerFailures,
			apperror.Newf(code, "provider declined payment %s: %s", payment.ExternalID, obj.LastPaymentError.Message).
				WithCorrelationID(correlationID).
				WithDetail("decline_code", obj.LastPaymentError.DeclineCode))
	}

	res.status = model.EventStatusApplied
	return nil
}

func (p *Processor) applyDisputeCreated(ctx context.Context, tx Tx, env event.Envelope, correlationID string, res *applyResult) *apperror.Error {
	obj, appErr := env.Dispute()
	if appErr != nil {
		return appErr
	}

	payment, err := tx.PaymentByExternalID(ctx, obj.PaymentIntent)
	if err != nil {
		return apperror.FromError(err)
	}
	if payment == nil {
		p.orphan(ctx, env, "payment", obj.PaymentIntent, res)
		return nil
	}

	if !payment.Status.CanTransitionTo(model.PaymentStatusDisputed) {
		return apperror.Newf(apperror.BusinessLogicConflict,
			"payment %s cannot move from %s to disputed", payment.ExternalID, payment.Status).
			WithDetail("payment_status", string(payment.Status))
	}

	from := payment.Status
	payment.Status = model.PaymentStatusDisputed
	if obj.Status != "" {
		status := obj.Status
		payment.DisputeStatus = &status
	}
	if obj.Reason != "" {
		reason := obj.Reason
		payment.DisputeReason = &reason
	}
	if err := tx.UpdatePayment(ctx, payment); err != nil {
		return apperror.FromError(err)
	}
	res.transitions = append(res.transitions, p.transition(env, correlationID, "payment", payment.ExternalID, string(from), string(payment.Status)))

	res.status = model.EventStatusApplied
	return nil
}

func (p *Processor) applyTransferCreated(ctx context.Context, tx Tx, env event.Envelope, correlationID string, res *applyResult) *apperror.Error {
	obj, appErr := env.Transfer()
	if appErr != nil {
		return appErr
	}

	payout, err := tx.PayoutByExternalID(ctx, obj.ID)
	if err != nil {
		return apperror.FromError(err)
	}
	if payout == nil {
		p.orphan(ctx, env, "payout", obj.ID, res)
		return nil
	}

	if !payout.Status.CanTransitionTo(model.PayoutStatusCompleted) {
		return apperror.Newf(apperror.BusinessLogicConflict,
			"payout %s cannot move from %s to completed", payout.ExternalID, payout.Status).
			WithDetail("payout_status", string(payout.Status))
	}

	from := payout.Status
	payout.Status = model.PayoutStatusCompleted
	paidAt := time.Now()
	payout.PaidAt = &paidAt
	if err := tx.UpdatePayout(ctx, payout); err != nil {
		return apperror.FromError(err)
	}
	res.transitions = append(res.transitions, p.transition(env, correlationID, "payout", payout.ExternalID, string(from), string(payout.Status)))

	res.status = model.EventStatusApplied
	return nil
}

func (p *Processor) applyTransferFailed(ctx context.Context, tx Tx, env event.Envelope, correlationID string, res *applyResult) *apperror.Error {
	obj, appErr := env.Transfer()
	if appErr != nil {
		return appErr
	}

	payout, err := tx.PayoutByExternalID(ctx, obj.ID)
	if err != nil {
		return apperror.FromError(err)
	}
	if payout == nil {
		p.orphan(ctx, env, "payout", obj.ID, res)
		return nil
	}

	if !payout.Status.CanTransitionTo(model.PayoutStatusFailed) {
		return apperror.Newf(apperror.BusinessLogicConflict,
			"payout %s cannot move from %s to failed", payout.ExternalID, payout.Status).
			WithDetail("payout_status", string(payout.Status))
	}

	from := payout.Status
	payout.Status = model.PayoutStatusFailed
	if obj.FailureMessage != "" {
		reason := obj.FailureMessage
		payout.FailureReason = &reason
	}
	if err := tx.UpdatePayout(ctx, payout); err != nil {
		return apperror.FromError(err)
	}
	res.transitions = append(res.transitions, p.transition(env, correlationID, "payout", payout.ExternalID, string(from), string(payout.Status)))

	res.status = model.EventStatusApplied
	return nil
}

func (p *Processor) transition(env event.Envelope, correlationID, recordType, recordID, from, to string) audit.Transition {
	return audit.Transition{
		EventID:       env.ID,
		EventType:     env.RawType,
		RecordType:    recordType,
		RecordID:      recordID,
		From:          from,
		To:            to,
		CorrelationID: correlationID,
		OccurredAt:    time.Now(),
	}
}
