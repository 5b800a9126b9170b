// Package memstore is an in-memory webhook.Store with the same claim and
// rollback semantics as the pgx repository. It backs unit tests and local
// runs without a database.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"payment-webhook-service/internal/model"
	"payment-webhook-service/internal/webhook"
)

type state struct {
	events       map[string]*model.WebhookEvent
	payments     map[string]*model.Payment
	appointments map[uuid.UUID]*model.Appointment
	payouts      map[string]*model.Payout
}

func newState() *state {
	return &state{
		events:       map[string]*model.WebhookEvent{},
		payments:     map[string]*model.Payment{},
		appointments: map[uuid.UUID]*model.Appointment{},
		payouts:      map[string]*model.Payout{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.events {
		ev := *v
		c.events[k] = &ev
	}
	for k, v := range s.payments {
		p := *v
		c.payments[k] = &p
	}
	for k, v := range s.appointments {
		a := *v
		c.appointments[k] = &a
	}
	for k, v := range s.payouts {
		p := *v
		c.payouts[k] = &p
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state

	// writeErr, when set, fails every record mutation inside a transaction.
	writeErr error
}

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) AddPayment(p model.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.payments[p.ExternalID] = &p
}

func (s *Store) AddAppointment(a model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.appointments[a.PaymentID] = &a
}

func (s *Store) AddPayout(p model.Payout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.payouts[p.ExternalID] = &p
}

// FailWrites makes every in-transaction mutation return err until reset with
// nil. Used to simulate a datastore failure mid-transition.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *Store) Payment(externalID string) (model.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.payments[externalID]
	if !ok {
		return model.Payment{}, false
	}
	return *p, true
}

func (s *Store) Appointment(paymentID uuid.UUID) (model.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.appointments[paymentID]
	if !ok {
		return model.Appointment{}, false
	}
	return *a, true
}

func (s *Store) Payout(externalID string) (model.Payout, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.payouts[externalID]
	if !ok {
		return model.Payout{}, false
	}
	return *p, true
}

func (s *Store) Event(id string) (model.WebhookEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.state.events[id]
	if !ok {
		return model.WebhookEvent{}, false
	}
	return *ev, true
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx webhook.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &txn{state: working, writeErr: s.writeErr}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) MarkEventFailed(ctx context.Context, ev *model.WebhookEvent, procErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.state.events[ev.ID]
	if ok && existing.Status != model.EventStatusProcessing {
		return nil
	}

	failed := *ev
	failed.Status = model.EventStatusFailed
	failed.Error = &procErr
	s.state.events[ev.ID] = &failed
	return nil
}

type txn struct {
	state    *state
	writeErr error
}

func (t *txn) ClaimEvent(ctx context.Context, ev *model.WebhookEvent) (webhook.ClaimResult, error) {
	existing, ok := t.state.events[ev.ID]
	if !ok {
		claimed := *ev
		t.state.events[ev.ID] = &claimed
		return webhook.ClaimAcquired, nil
	}

	if existing.Status == model.EventStatusFailed || existing.Status == model.EventStatusReceived {
		existing.Status = model.EventStatusProcessing
		existing.CorrelationID = ev.CorrelationID
		existing.Error = nil
		return webhook.ClaimAcquired, nil
	}

	return webhook.ClaimDuplicate, nil
}

func (t *txn) MarkEventProcessed(ctx context.Context, eventID string, status model.EventStatus, processedAt time.Time) error {
	if ev, ok := t.state.events[eventID]; ok {
		ev.Status = status
		ev.ProcessedAt = &processedAt
		ev.Error = nil
	}
	return nil
}

func (t *txn) PaymentByExternalID(ctx context.Context, externalID string) (*model.Payment, error) {
	return t.state.payments[externalID], nil
}

func (t *txn) UpdatePayment(ctx context.Context, payment *model.Payment) error {
	if t.writeErr != nil {
		return t.writeErr
	}
	payment.UpdatedAt = time.Now()
	t.state.payments[payment.ExternalID] = payment
	return nil
}

func (t *txn) AppointmentByPaymentID(ctx context.Context, paymentID uuid.UUID) (*model.Appointment, error) {
	return t.state.appointments[paymentID], nil
}

func (t *txn) UpdateAppointment(ctx context.Context, appointment *model.Appointment) error {
	if t.writeErr != nil {
		return t.writeErr
	}
	appointment.UpdatedAt = time.Now()
	t.state.appointments[appointment.PaymentID] = appointment
	return nil
}

func (t *txn) PayoutByExternalID(ctx context.Context, externalID string) (*model.Payout, error) {
	return t.state.payouts[externalID], nil
}

func (t *txn) UpdatePayout(ctx context.Context, payout *model.Payout) error {
	if t.writeErr != nil {
		return t.writeErr
	}
	payout.UpdatedAt = time.Now()
	t.state.payouts[payout.ExternalID] = payout
	return nil
}
