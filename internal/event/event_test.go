package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentCreatedRoundTrip(t *testing.T) {
	evt := NewPaymentCreated("p-1", "m-1", 2500, "USD", "ext-9", "coffee")
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.Equal(t, evt.EventID(), raw["eventId"])
	assert.Equal(t, TypePaymentCreated, raw["eventType"])
	assert.Equal(t, "p-1", raw["paymentId"])
	assert.EqualValues(t, 2500, raw["amountInMinorUnits"])

	decoded, err := DecodePaymentCreated(payload)
	require.NoError(t, err)
	assert.Equal(t, evt.PaymentID, decoded.PaymentID)
	assert.Equal(t, evt.EventID(), decoded.EventID())
	assert.True(t, evt.OccurredAt().Equal(decoded.OccurredAt()))
}

func TestDecodePaymentCreatedErrors(t *testing.T) {
	t.Run("Invalid JSON", func(t *testing.T) {
		_, err := DecodePaymentCreated([]byte("{not json"))
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})

	t.Run("Missing payment id", func(t *testing.T) {
		_, err := DecodePaymentCreated([]byte(`{"merchantId":"m-1","amountInMinorUnits":10}`))
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})
}

func TestDecodeByType(t *testing.T) {
	src := NewWithdrawalCancelled("w-1", "m-1", 300, "USD")
	payload, err := json.Marshal(src)
	require.NoError(t, err)

	evt, err := Decode(TypeWithdrawalCancelled, payload)
	require.NoError(t, err)
	cancelled, ok := evt.(*WithdrawalCancelled)
	require.True(t, ok)
	assert.Equal(t, "w-1", cancelled.WithdrawalID)
	assert.Equal(t, TypeWithdrawalCancelled, cancelled.EventType())

	_, err = Decode("Unknown", payload)
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestPaymentFlaggedCopiesCreated(t *testing.T) {
	created := NewPaymentCreated("p-1", "m-1", 150000, "USD", "ext", "desc")
	flagged := NewPaymentFlagged(created, "high value")

	assert.Equal(t, TypePaymentFlagged, flagged.EventType())
	assert.NotEqual(t, created.EventID(), flagged.EventID())
	assert.Equal(t, created.Amount, flagged.Amount)
	assert.Equal(t, "high value", flagged.FlagReason)
}
