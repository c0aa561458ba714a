package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentLifecycle(t *testing.T) {
	t.Run("Validation", func(t *testing.T) {
		_, err := NewPayment("m-1", 0, "USD", "", "")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = NewPayment("m-1", 100, "usdollar", "", "")
		assert.ErrorIs(t, err, ErrInvalidCurrency)
		_, err = NewPayment("", 100, "USD", "", "")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("Complete then refund in full", func(t *testing.T) {
		p, err := NewPayment("m-1", 5000, "usd", "ext-1", "order")
		require.NoError(t, err)
		assert.Equal(t, PaymentStatusPending, p.Status)

		require.NoError(t, p.Complete(CompletedByManual))
		assert.Equal(t, CompletedByManual, p.CompletedBy)
		assert.NotNil(t, p.CompletedAt)

		refunded, err := p.Refund(0, "customer request")
		require.NoError(t, err)
		assert.Equal(t, int64(5000), refunded)
		assert.Equal(t, PaymentStatusRefunded, p.Status)
		assert.Equal(t, "customer request", p.RefundReason)
	})

	t.Run("Partial refund", func(t *testing.T) {
		p, err := NewPayment("m-1", 5000, "USD", "", "")
		require.NoError(t, err)
		require.NoError(t, p.Complete(CompletedByFraudReview))

		_, err = p.Refund(6000, "")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.Equal(t, PaymentStatusCompleted, p.Status)

		refunded, err := p.Refund(1500, "")
		require.NoError(t, err)
		assert.Equal(t, int64(1500), refunded)
	})

	t.Run("Invalid transitions", func(t *testing.T) {
		p, err := NewPayment("m-1", 100, "USD", "", "")
		require.NoError(t, err)

		_, err = p.Refund(0, "")
		assert.ErrorIs(t, err, ErrInvalidTransition)

		require.NoError(t, p.Fail())
		assert.ErrorIs(t, p.Complete(CompletedByManual), ErrInvalidTransition)
		assert.ErrorIs(t, p.Fail(), ErrInvalidTransition)
		assert.Equal(t, PaymentStatusFailed, p.Status)
	})

	t.Run("Unknown completion source", func(t *testing.T) {
		p, err := NewPayment("m-1", 100, "USD", "", "")
		require.NoError(t, err)
		assert.ErrorIs(t, p.Complete("ROBOT"), ErrInvalidArgument)
		assert.Equal(t, PaymentStatusPending, p.Status)
	})
}

func TestWithdrawalLifecycle(t *testing.T) {
	newW := func(t *testing.T) *Withdrawal {
		w, err := NewWithdrawal("m-1", 300, "USD", "123456789", "021000021")
		require.NoError(t, err)
		return w
	}

	t.Run("Requires bank details", func(t *testing.T) {
		_, err := NewWithdrawal("m-1", 300, "USD", "", "021000021")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("Happy path", func(t *testing.T) {
		w := newW(t)
		require.NoError(t, w.MarkProcessing("EXT-1"))
		require.NoError(t, w.Complete())
		assert.Equal(t, WithdrawalStatusCompleted, w.Status)
		assert.Equal(t, "EXT-1", w.ExternalTxID)
	})

	t.Run("Cannot cancel once processing", func(t *testing.T) {
		w := newW(t)
		require.NoError(t, w.MarkProcessing("EXT-1"))
		assert.ErrorIs(t, w.Cancel(), ErrInvalidTransition)
		require.NoError(t, w.Fail("bank rejected"))
		assert.Equal(t, "bank rejected", w.FailureReason)
	})

	t.Run("Cannot complete from pending", func(t *testing.T) {
		w := newW(t)
		assert.ErrorIs(t, w.Complete(), ErrInvalidTransition)
		require.NoError(t, w.Cancel())
		assert.ErrorIs(t, w.Fail("late"), ErrInvalidTransition)
	})
}

func TestNewMerchant(t *testing.T) {
	m, err := NewMerchant("Acme", "Billing@Acme.io")
	require.NoError(t, err)
	assert.Equal(t, "billing@acme.io", m.Email)
	assert.True(t, m.IsActive)

	m.Deactivate()
	assert.False(t, m.IsActive)
	m.Activate()
	assert.True(t, m.IsActive)

	_, err = NewMerchant("Acme", "not-an-email")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewMerchant(" ", "a@b.io")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
