package model

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventStatusReceived   EventStatus = "received"
	EventStatusProcessing EventStatus = "processing"
	EventStatusApplied    EventStatus = "applied"
	EventStatusIgnored    EventStatus = "ignored"
	EventStatusFailed     EventStatus = "failed"
)

// WebhookEvent is the append-only record of one inbound notification, keyed
// by the provider's event id. The raw payload is deliberately not stored.
type WebhookEvent struct {
	ID            string
	Type          string
	Status        EventStatus
	CorrelationID string
	ReceivedAt    time.Time
	ProcessedAt   *time.Time
	Error         *string
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusDisputed  PaymentStatus = "disputed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// paymentTransitions is the fixed transition graph. Terminal states
// (completed, refunded) only move into disputed.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusFailed:    {PaymentStatusFailed},
	PaymentStatusCompleted: {PaymentStatusDisputed},
	PaymentStatusRefunded:  {PaymentStatusDisputed},
	PaymentStatusDisputed:  {},
}

func (s PaymentStatus) CanTransitionTo(to PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Payment struct {
	ID            uuid.UUID
	ExternalID    string
	ChargeID      *string
	Amount        int64
	Currency      string
	Status        PaymentStatus
	FailureReason *string
	DisputeStatus *string
	DisputeReason *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

type Appointment struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusCompleted PayoutStatus = "completed"
	PayoutStatusFailed    PayoutStatus = "failed"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:   {PayoutStatusCompleted, PayoutStatusFailed},
	PayoutStatusFailed:    {PayoutStatusFailed},
	PayoutStatusCompleted: {},
}

func (s PayoutStatus) CanTransitionTo(to PayoutStatus) bool {
	for _, allowed := range payoutTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Payout struct {
	ID            uuid.UUID
	ExternalID    string
	Amount        int64
	Currency      string
	Status        PayoutStatus
	FailureReason *string
	PaidAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
