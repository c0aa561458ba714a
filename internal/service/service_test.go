package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"merchantpay/internal/config"
	"merchantpay/internal/infrastructure/mq"
	"merchantpay/internal/infrastructure/mq/mocks"
	"merchantpay/internal/model"
	"merchantpay/internal/repository"
	"merchantpay/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testTopics = config.KafkaTopicConfig{
	PaymentEvents:    "payment-events",
	WithdrawalEvents: "withdrawal-events",
	DeadLetter:       "dead-letter-queue",
}

type testEnv struct {
	db          *gorm.DB
	pub         *mocks.Publisher
	merchants   *MerchantService
	payments    *PaymentService
	withdrawals *WithdrawalService
	ledger      *LedgerService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	pub := mocks.NewPublisher(t)
	pub.On("Send", mock.Anything, mock.Anything).Return(nil).Maybe()

	return &testEnv{
		db:          db,
		pub:         pub,
		merchants:   NewMerchantService(db),
		payments:    NewPaymentService(db, pub, testTopics),
		withdrawals: NewWithdrawalService(db, pub, testTopics),
		ledger:      NewLedgerService(db),
	}
}

func (e *testEnv) merchant(t *testing.T) *model.Merchant {
	t.Helper()
	m, err := e.merchants.CreateMerchant(context.Background(), &CreateMerchantRequest{
		Name:  "Acme",
		Email: "billing@acme.io",
	})
	require.NoError(t, err)
	return m
}

// fund 创建并完成一笔支付
func (e *testEnv) fund(t *testing.T, merchantID string, amount int64) *model.Payment {
	t.Helper()
	ctx := context.Background()
	p, err := e.payments.CreatePayment(ctx, merchantID, &CreatePaymentRequest{Amount: amount, Currency: "USD"})
	require.NoError(t, err)
	p, err = e.payments.CompletePayment(ctx, p.ID, model.CompletedByManual)
	require.NoError(t, err)
	return p
}

func (e *testEnv) balance(t *testing.T, merchantID string) *model.Balance {
	t.Helper()
	b, err := e.merchants.GetBalance(context.Background(), merchantID, "USD")
	require.NoError(t, err)
	return b
}

func (e *testEnv) assertConsistent(t *testing.T, merchantID string) {
	t.Helper()
	v, err := e.ledger.VerifyBalance(context.Background(), merchantID, "USD")
	require.NoError(t, err)
	assert.True(t, v.IsValid, "ledger=%d balance=%d", v.LedgerCalculatedValue, v.BalanceTableValue)
}

func TestMerchantService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	m, err := env.merchants.CreateMerchant(ctx, &CreateMerchantRequest{Name: "Acme", Email: "ops@acme.io"})
	require.NoError(t, err)

	_, err = env.merchants.CreateMerchant(ctx, &CreateMerchantRequest{Name: "Acme 2", Email: "OPS@acme.io"})
	assert.ErrorIs(t, err, repository.ErrMerchantExists)

	_, err = env.merchants.CreateMerchant(ctx, &CreateMerchantRequest{Name: "Bad", Email: "nope"})
	assert.True(t, model.IsValidationError(err))

	_, err = env.merchants.DeactivateMerchant(ctx, m.ID)
	require.NoError(t, err)
	active, err := env.merchants.ListActiveMerchants(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = env.payments.CreatePayment(ctx, m.ID, &CreatePaymentRequest{Amount: 100, Currency: "USD"})
	assert.ErrorIs(t, err, model.ErrMerchantInactive)

	_, err = env.merchants.ActivateMerchant(ctx, m.ID)
	require.NoError(t, err)
	active, err = env.merchants.ListActiveMerchants(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = env.merchants.GetMerchant(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrMerchantNotFound)

	_, err = env.merchants.GetBalance(ctx, m.ID, "USD")
	assert.ErrorIs(t, err, repository.ErrBalanceNotFound)
}

func TestCompleteAndRefundPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	m := env.merchant(t)

	p := env.fund(t, m.ID, 10000)
	assert.Equal(t, model.PaymentStatusCompleted, p.Status)
	assert.Equal(t, int64(10000), env.balance(t, m.ID).Available)

	_, err := env.payments.CompletePayment(ctx, p.ID, model.CompletedByManual)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, int64(10000), env.balance(t, m.ID).Available)

	_, err = env.payments.RefundPayment(ctx, "someone-else", p.ID, &RefundRequest{})
	assert.ErrorIs(t, err, repository.ErrPaymentNotFound)

	refunded, err := env.payments.RefundPayment(ctx, m.ID, p.ID, &RefundRequest{Reason: "customer request"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, refunded.Status)
	assert.Equal(t, int64(10000), refunded.RefundedAmount)

	assert.Equal(t, int64(0), env.balance(t, m.ID).Available)

	entries, total, err := env.ledger.History(ctx, m.ID, "usd", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(0), model.SumLedger(entries))
	env.assertConsistent(t, m.ID)
}

func TestRefundAfterWithdrawalIsRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	m := env.merchant(t)
	p := env.fund(t, m.ID, 1000)

	_, err := env.withdrawals.CreateWithdrawal(ctx, m.ID, &CreateWithdrawalRequest{
		Amount: 800, Currency: "USD", BankAccountNumber: "123456789", BankRoutingNumber: "021000021",
	})
	require.NoError(t, err)

	_, err = env.payments.RefundPayment(ctx, m.ID, p.ID, &RefundRequest{})
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	got, err := env.payments.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, got.Status)
	env.assertConsistent(t, m.ID)
}

// conflictOnBalanceUpdate 在余额 CAS 更新前抢先把版本号加一，等同于另一个事务先提交；
// 只生效前 times 次
func conflictOnBalanceUpdate(t *testing.T, db *gorm.DB, times int32) *atomic.Int32 {
	t.Helper()
	var fired atomic.Int32
	err := db.Callback().Update().Before("gorm:update").Register("test:balance_conflict", func(tx *gorm.DB) {
		if tx.Statement.Table != "balances" || fired.Load() >= times {
			return
		}
		fired.Add(1)
		tx.Session(&gorm.Session{NewDB: true}).Exec("UPDATE balances SET version = version + 1")
	})
	require.NoError(t, err)
	return &fired
}

func completeWithRetry(ctx context.Context, svc *PaymentService, paymentID string) error {
	for attempt := 0; attempt < 5; attempt++ {
		_, err := svc.CompletePayment(ctx, paymentID, model.CompletedByFraudReview)
		if !errors.Is(err, repository.ErrConcurrentModification) {
			return err
		}
	}
	return fmt.Errorf("重试次数用尽: %s", paymentID)
}

func TestCompletePaymentVersionConflict(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	m := env.merchant(t)

	p, err := env.payments.CreatePayment(ctx, m.ID, &CreatePaymentRequest{Amount: 10000, Currency: "USD"})
	require.NoError(t, err)

	fired := conflictOnBalanceUpdate(t, env.db, 1)

	_, err = env.payments.CompletePayment(ctx, p.ID, model.CompletedByManual)
	assert.ErrorIs(t, err, repository.ErrConcurrentModification)
	assert.Equal(t, int32(1), fired.Load())

	// 整个事务回滚：支付单仍是 Pending，没有账本记录，也没有余额行
	got, err := env.payments.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, got.Status)

	_, total, err := env.ledger.History(ctx, m.ID, "USD", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	_, err = env.merchants.GetBalance(ctx, m.ID, "USD")
	assert.ErrorIs(t, err, repository.ErrBalanceNotFound)

	// 重试成功
	completed, err := env.payments.CompletePayment(ctx, p.ID, model.CompletedByManual)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, completed.Status)
	assert.Equal(t, int64(10000), env.balance(t, m.ID).Available)
	env.assertConsistent(t, m.ID)
}

func TestConcurrentCompletions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	m := env.merchant(t)

	const n = 10
	const amount = int64(250)

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p, err := env.payments.CreatePayment(ctx, m.ID, &CreatePaymentRequest{Amount: amount, Currency: "USD"})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	// 部分完成操作会遇到版本冲突，调用方按 ErrConcurrentModification 重试
	fired := conflictOnBalanceUpdate(t, env.db, 3)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			errs <- completeWithRetry(ctx, env.payments, id)
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(3), fired.Load())

	assert.Equal(t, n*amount, env.balance(t, m.ID).Available)
	_, total, err := env.ledger.History(ctx, m.ID, "USD", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(n), total)
	env.assertConsistent(t, m.ID)

	count, err := env.payments.CountCompleted(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), count)
}

func TestBulkPayments(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	m := env.merchant(t)

	t.Run("All or nothing", func(t *testing.T) {
		_, err := env.payments.CreateBulkPayments(ctx, m.ID, []CreatePaymentRequest{
			{Amount: 100, Currency: "USD"},
			{Amount: -1, Currency: "USD"},
		})
		assert.ErrorIs(t, err, model.ErrInvalidAmount)

		_, total, err := env.payments.ListPayments(ctx, m.ID, repository.PaymentFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
	})

	t.Run("Empty batch", func(t *testing.T) {
		_, err := env.payments.CreateBulkPayments(ctx, m.ID, nil)
		assert.ErrorIs(t, err, model.ErrInvalidArgument)
	})

	t.Run("Creates every payment", func(t *testing.T) {
		payments, err := env.payments.CreateBulkPayments(ctx, m.ID, []CreatePaymentRequest{
			{Amount: 100, Currency: "USD", ExternalReference: "a"},
			{Amount: 200, Currency: "EUR", ExternalReference: "b"},
			{Amount: 300, Currency: "usd", ExternalReference: "c"},
		})
		require.NoError(t, err)
		assert.Len(t, payments, 3)

		list, total, err := env.payments.ListPayments(ctx, m.ID, repository.PaymentFilter{Status: model.PaymentStatusPending})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, list, 3)

		_, _, err = env.payments.ListPayments(ctx, m.ID, repository.PaymentFilter{Status: "LOST"})
		assert.ErrorIs(t, err, model.ErrInvalidArgument)
	})
}

func TestCreatePaymentPublishFailure(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	pub := mocks.NewPublisher(t)
	pub.On("Send", mock.Anything, mock.Anything).Return(fmt.Errorf("%w: broker down", mq.ErrPublish)).Once()

	m, err := NewMerchantService(db).CreateMerchant(ctx, &CreateMerchantRequest{Name: "Acme", Email: "a@acme.io"})
	require.NoError(t, err)

	svc := NewPaymentService(db, pub, testTopics)
	p, err := svc.CreatePayment(ctx, m.ID, &CreatePaymentRequest{Amount: 100, Currency: "USD"})
	assert.ErrorIs(t, err, mq.ErrPublish)
	require.NotNil(t, p)

	stored, err := svc.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, stored.Status)
}

func TestFailPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	m := env.merchant(t)

	p, err := env.payments.CreatePayment(ctx, m.ID, &CreatePaymentRequest{Amount: 100, Currency: "USD"})
	require.NoError(t, err)

	failed, err := env.payments.FailPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, failed.Status)

	_, err = env.payments.CompletePayment(ctx, p.ID, model.CompletedByManual)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = env.payments.FailPayment(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrPaymentNotFound)
}

func TestWithdrawalCancel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	m := env.merchant(t)
	env.fund(t, m.ID, 10000)

	w, err := env.withdrawals.CreateWithdrawal(ctx, m.ID, &CreateWithdrawalRequest{
		Amount: 5000, Currency: "USD", BankAccountNumber: "123456789", BankRoutingNumber: "021000021",
	})
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusPending, w.Status)

	b := env.balance(t, m.ID)
	assert.Equal(t, int64(5000), b.Available)
	assert.Equal(t, int64(5000), b.Pending)
	env.assertConsistent(t, m.ID)

	cancelled, err := env.withdrawals.CancelWithdrawal(ctx, m.ID, w.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusCancelled, cancelled.Status)

	b = env.balance(t, m.ID)
	assert.Equal(t, int64(10000), b.Available)
	assert.Equal(t, int64(0), b.Pending)

	_, err = env.withdrawals.CancelWithdrawal(ctx, m.ID, w.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, total, err := env.ledger.History(ctx, m.ID, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	env.assertConsistent(t, m.ID)
}

func TestWithdrawalProcessing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	m := env.merchant(t)
	env.fund(t, m.ID, 10000)

	newW := func() *model.Withdrawal {
		w, err := env.withdrawals.CreateWithdrawal(ctx, m.ID, &CreateWithdrawalRequest{
			Amount: 3000, Currency: "USD", BankAccountNumber: "123456789", BankRoutingNumber: "021000021",
		})
		require.NoError(t, err)
		return w
	}

	t.Run("Complete", func(t *testing.T) {
		w := newW()
		_, err := env.withdrawals.CompleteWithdrawal(ctx, m.ID, w.ID)
		assert.ErrorIs(t, err, model.ErrInvalidTransition)

		processing, err := env.withdrawals.ProcessWithdrawal(ctx, m.ID, w.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, processing.ExternalTxID)

		_, err = env.withdrawals.CancelWithdrawal(ctx, m.ID, w.ID)
		assert.ErrorIs(t, err, model.ErrInvalidTransition)

		done, err := env.withdrawals.CompleteWithdrawal(ctx, m.ID, w.ID)
		require.NoError(t, err)
		assert.Equal(t, model.WithdrawalStatusCompleted, done.Status)

		b := env.balance(t, m.ID)
		assert.Equal(t, int64(7000), b.Available)
		assert.Equal(t, int64(0), b.Pending)
		env.assertConsistent(t, m.ID)
	})

	t.Run("Fail", func(t *testing.T) {
		w := newW()
		_, err := env.withdrawals.ProcessWithdrawal(ctx, m.ID, w.ID)
		require.NoError(t, err)

		failed, err := env.withdrawals.FailWithdrawal(ctx, m.ID, w.ID, "bank rejected")
		require.NoError(t, err)
		assert.Equal(t, "bank rejected", failed.FailureReason)

		b := env.balance(t, m.ID)
		assert.Equal(t, int64(7000), b.Available)
		assert.Equal(t, int64(0), b.Pending)
		env.assertConsistent(t, m.ID)
	})

	t.Run("Other merchant", func(t *testing.T) {
		w := newW()
		_, err := env.withdrawals.GetWithdrawal(ctx, "other", w.ID)
		assert.ErrorIs(t, err, repository.ErrWithdrawalNotFound)
		_, err = env.withdrawals.CancelWithdrawal(ctx, "other", w.ID)
		assert.ErrorIs(t, err, repository.ErrWithdrawalNotFound)

		list, err := env.withdrawals.ListWithdrawals(ctx, m.ID, 10, 0)
		require.NoError(t, err)
		assert.Len(t, list, 3)
	})
}

func TestWithdrawalInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	m := env.merchant(t)
	env.fund(t, m.ID, 1000)

	req := &CreateWithdrawalRequest{Amount: 1001, Currency: "USD", BankAccountNumber: "123456789", BankRoutingNumber: "021000021"}
	_, err := env.withdrawals.CreateWithdrawal(ctx, m.ID, req)
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	req.Currency = "EUR"
	req.Amount = 1
	_, err = env.withdrawals.CreateWithdrawal(ctx, m.ID, req)
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	b := env.balance(t, m.ID)
	assert.Equal(t, int64(1000), b.Available)
	assert.Equal(t, int64(0), b.Pending)

	list, err := env.withdrawals.ListWithdrawals(ctx, m.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestVerifyBalanceDetectsMismatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	m := env.merchant(t)
	env.fund(t, m.ID, 500)

	require.NoError(t, env.db.Exec("UPDATE balances SET available = available + 7 WHERE merchant_id = ?", m.ID).Error)

	v, err := env.ledger.VerifyBalance(ctx, m.ID, "USD")
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.Equal(t, int64(507), v.BalanceTableValue)
	assert.Equal(t, int64(500), v.LedgerCalculatedValue)
	assert.Equal(t, int64(-7), v.Difference)

	all, err := env.ledger.VerifyAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsValid)

	empty, err := env.ledger.VerifyBalance(ctx, "nobody", "EUR")
	require.NoError(t, err)
	assert.True(t, empty.IsValid)

	_, err = env.ledger.VerifyBalance(ctx, m.ID, "dollars")
	assert.True(t, errors.Is(err, model.ErrInvalidCurrency))
}
