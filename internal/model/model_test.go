package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentTransitions(t *testing.T) {
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusCompleted))
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusFailed))
	assert.True(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusDisputed))
	assert.True(t, PaymentStatusRefunded.CanTransitionTo(PaymentStatusDisputed))
	assert.True(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusFailed))

	// terminal states never regress
	assert.False(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusPending))
	assert.False(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusFailed))
	assert.False(t, PaymentStatusRefunded.CanTransitionTo(PaymentStatusCompleted))
	assert.False(t, PaymentStatusDisputed.CanTransitionTo(PaymentStatusCompleted))
	assert.False(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusCompleted))
}

func TestPayoutTransitions(t *testing.T) {
	assert.True(t, PayoutStatusPending.CanTransitionTo(PayoutStatusCompleted))
	assert.True(t, PayoutStatusPending.CanTransitionTo(PayoutStatusFailed))
	assert.True(t, PayoutStatusFailed.CanTransitionTo(PayoutStatusFailed))

	assert.False(t, PayoutStatusCompleted.CanTransitionTo(PayoutStatusFailed))
	assert.False(t, PayoutStatusCompleted.CanTransitionTo(PayoutStatusPending))
	assert.False(t, PayoutStatusFailed.CanTransitionTo(PayoutStatusCompleted))
}
