package repository

import (
	"context"
	"testing"

	"merchantpay/internal/model"
	"merchantpay/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestBalanceRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("GetOrCreate is idempotent", func(t *testing.T) {
		repo := NewBalanceRepository(testutil.NewTestDB(t))

		_, err := repo.GetByMerchantCurrency(ctx, "m-1", "USD")
		assert.ErrorIs(t, err, ErrBalanceNotFound)

		first, err := repo.GetOrCreate(ctx, "m-1", "USD")
		require.NoError(t, err)
		second, err := repo.GetOrCreate(ctx, "m-1", "USD")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, int64(0), second.Available)

		all, err := repo.ListByMerchant(ctx, "m-1")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("Update persists and bumps version", func(t *testing.T) {
		repo := NewBalanceRepository(testutil.NewTestDB(t))
		b, err := repo.GetOrCreate(ctx, "m-1", "USD")
		require.NoError(t, err)

		require.NoError(t, b.CreditAvailable(500))
		require.NoError(t, repo.Update(ctx, b))
		assert.Equal(t, int64(1), b.PersistedVersion())

		reloaded, err := repo.GetForUpdate(ctx, "m-1", "USD")
		require.NoError(t, err)
		assert.Equal(t, int64(500), reloaded.Available)
		assert.Equal(t, int64(1), reloaded.Version)
	})

	t.Run("Stale version is rejected", func(t *testing.T) {
		repo := NewBalanceRepository(testutil.NewTestDB(t))
		_, err := repo.GetOrCreate(ctx, "m-1", "USD")
		require.NoError(t, err)

		a, err := repo.GetByMerchantCurrency(ctx, "m-1", "USD")
		require.NoError(t, err)
		b, err := repo.GetByMerchantCurrency(ctx, "m-1", "USD")
		require.NoError(t, err)

		require.NoError(t, a.CreditAvailable(100))
		require.NoError(t, repo.Update(ctx, a))

		require.NoError(t, b.CreditAvailable(200))
		assert.ErrorIs(t, repo.Update(ctx, b), ErrConcurrentModification)

		final, err := repo.GetByMerchantCurrency(ctx, "m-1", "USD")
		require.NoError(t, err)
		assert.Equal(t, int64(100), final.Available)
	})
}

func TestBalanceGetOrCreateRace(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)

	// 插入后行不可见：等同于另一个事务抢先插入，本事务快照里读不到
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:hide_balance", func(tx *gorm.DB) {
		if tx.Statement.Table == "balances" {
			tx.Session(&gorm.Session{NewDB: true}).Exec("DELETE FROM balances")
		}
	}))

	_, err := NewBalanceRepository(db).GetOrCreate(ctx, "m-1", "USD")
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.NotErrorIs(t, err, ErrBalanceNotFound)
}

func TestLedgerRepositorySum(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(testutil.NewTestDB(t))

	sum, err := repo.SumByMerchantCurrency(ctx, "m-1", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum)

	amounts := []struct {
		typ    string
		amount int64
		cur    string
	}{
		{model.LedgerPaymentReceived, 1000, "USD"},
		{model.LedgerWithdrawalRequested, -300, "USD"},
		{model.LedgerPaymentReceived, 700, "EUR"},
	}
	for _, a := range amounts {
		e, err := model.NewLedgerEntry("m-1", a.typ, a.amount, a.cur, 0, "")
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, e.ForPayment("p-1")))
	}

	sum, err = repo.SumByMerchantCurrency(ctx, "m-1", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(700), sum)

	entries, total, err := repo.ListByMerchant(ctx, "m-1", "", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, entries, 2)

	byPayment, err := repo.ListByPayment(ctx, "p-1")
	require.NoError(t, err)
	assert.Len(t, byPayment, 3)
}
