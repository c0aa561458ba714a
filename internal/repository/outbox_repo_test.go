package repository

import (
	"context"
	"testing"
	"time"

	"merchantpay/internal/model"
	"merchantpay/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository(testutil.NewTestDB(t))

	old := &model.OutboxMessage{
		EventID: "e-old", EventType: "PaymentCreated", Topic: "payment-events", Payload: "{}",
		Status: model.OutboxStatusPending, OccurredAt: time.Now(), CreatedAt: time.Now().Add(-time.Hour),
	}
	fresh := &model.OutboxMessage{
		EventID: "e-fresh", EventType: "PaymentCreated", Topic: "payment-events", Payload: "{}",
		Status: model.OutboxStatusPending, OccurredAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, fresh))

	pending, err := repo.GetPendingMessages(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "e-old", pending[0].EventID)

	require.NoError(t, repo.IncrementRetryCount(ctx, old.ID))
	require.NoError(t, repo.MarkAsFailed(ctx, old.ID))
	failed, err := repo.GetFailedMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].RetryCount)

	require.NoError(t, repo.Requeue(ctx, old.ID))
	assert.Error(t, repo.Requeue(ctx, old.ID))

	require.NoError(t, repo.MarkSent(ctx, fresh.ID))
	got, err := repo.GetByEventID(ctx, "e-fresh")
	require.NoError(t, err)
	assert.Equal(t, model.OutboxStatusSent, got.Status)
	assert.NotNil(t, got.SentAt)
}
