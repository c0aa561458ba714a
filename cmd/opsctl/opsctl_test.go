package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"merchantpay/internal/event"
	"merchantpay/internal/infrastructure/mq"
	"merchantpay/internal/infrastructure/mq/mocks"
	"merchantpay/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func deadLetterMessage(t *testing.T, eventID string) *mq.Message {
	t.Helper()
	body, err := json.Marshal(mq.DeadLetter{FailedEventRecord: event.FailedEventRecord{
		OriginalTopic: "payment-events",
		EventType:     "PaymentCreated",
		EventPayload:  `{"eventId":"` + eventID + `"}`,
		FailureReason: "MAX_RETRIES_EXCEEDED",
	}})
	require.NoError(t, err)
	return &mq.Message{Topic: "dead-letter-queue", Value: body}
}

func TestReplayer(t *testing.T) {
	t.Run("Replays to original topic and stops at limit", func(t *testing.T) {
		pub := mocks.NewPublisher(t)
		pub.On("Send", mock.Anything, mock.MatchedBy(func(m *mq.Message) bool {
			return m.Topic == "payment-events" && m.Header(mq.HeaderEventType) == "PaymentCreated"
		})).Return(nil).Twice()

		stopped := 0
		r := newReplayer(pub, 2, func() { stopped++ })

		ctx := context.Background()
		require.NoError(t, r.Handle(ctx, deadLetterMessage(t, "e-1")))
		require.NoError(t, r.Handle(ctx, deadLetterMessage(t, "e-2")))
		assert.Equal(t, 1, stopped)

		// 超过上限的消息不提交
		err := r.Handle(ctx, deadLetterMessage(t, "e-3"))
		assert.ErrorIs(t, err, errReplayLimit)
		assert.Equal(t, int64(2), r.replayed.Load())
	})

	t.Run("Skips undecodable dead letters", func(t *testing.T) {
		pub := mocks.NewPublisher(t)
		r := newReplayer(pub, 0, func() {})

		err := r.Handle(context.Background(), &mq.Message{Value: []byte("not json")})
		assert.NoError(t, err)
		assert.Equal(t, int64(0), r.replayed.Load())
	})

	t.Run("Send failure is returned", func(t *testing.T) {
		pub := mocks.NewPublisher(t)
		pub.On("Send", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
		r := newReplayer(pub, 0, func() {})

		err := r.Handle(context.Background(), deadLetterMessage(t, "e-1"))
		assert.Error(t, err)
		assert.Equal(t, int64(0), r.replayed.Load())
	})
}

func TestPrintVerifications(t *testing.T) {
	var buf bytes.Buffer
	n := printVerifications(&buf, []*service.BalanceVerification{
		{MerchantID: "m-1", Currency: "USD", BalanceTableValue: 100, LedgerCalculatedValue: 100, IsValid: true},
		{MerchantID: "m-2", Currency: "EUR", BalanceTableValue: 50, LedgerCalculatedValue: 40, Difference: -10},
	})
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "m-2")
	assert.Contains(t, buf.String(), "NO")
}
