package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// 账本分录类型
// ============================================================================

const (
	LedgerPaymentReceived     = "PAYMENT_RECEIVED"
	LedgerPaymentRefunded     = "PAYMENT_REFUNDED"
	LedgerWithdrawalRequested = "WITHDRAWAL_REQUESTED"
	LedgerWithdrawalCancelled = "WITHDRAWAL_CANCELLED"
	LedgerWithdrawalCompleted = "WITHDRAWAL_COMPLETED"
	LedgerWithdrawalFailed    = "WITHDRAWAL_FAILED"
	LedgerBalanceAdjustment   = "BALANCE_ADJUSTMENT"
)

var validLedgerTypes = map[string]bool{
	LedgerPaymentReceived:     true,
	LedgerPaymentRefunded:     true,
	LedgerWithdrawalRequested: true,
	LedgerWithdrawalCancelled: true,
	LedgerWithdrawalCompleted: true,
	LedgerWithdrawalFailed:    true,
	LedgerBalanceAdjustment:   true,
}

// ============================================================================
// 账本分录实体
// ============================================================================

// LedgerEntry 账本分录表
//
// 【重要】账本是余额正确性的唯一依据：
//  1. 只追加，不修改，不删除
//  2. 金额带符号：正数入账，负数出账
//  3. BalanceAfter 记录分录写入后的可用余额快照
//
// 账本记录的是"可用余额"的变动：提现申请时资金从可用转入冻结，记一笔负数；
// 取消/失败时释放回可用，记一笔正数。因此任意时刻
//
//	SUM(amount) == balances.available
//
// 两者不一致说明有 bug 或部分失败，需要通过对账接口发现，而不是默默信任余额表。
type LedgerEntry struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	MerchantID   string    `gorm:"type:varchar(36);index:idx_ledger_merchant_currency;not null" json:"merchant_id"`
	EntryType    string    `gorm:"type:varchar(32);not null" json:"entry_type"`
	Amount       int64     `gorm:"not null" json:"amount"` // 正数入账，负数出账
	Currency     string    `gorm:"type:varchar(3);index:idx_ledger_merchant_currency;not null" json:"currency"`
	BalanceAfter int64     `gorm:"not null" json:"balance_after"`
	PaymentID    *string   `gorm:"type:varchar(36);index" json:"payment_id,omitempty"`
	WithdrawalID *string   `gorm:"type:varchar(36);index" json:"withdrawal_id,omitempty"`
	Description  string    `gorm:"type:varchar(256)" json:"description"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// NewLedgerEntry 构造一条分录，金额为0或币种不合法直接拒绝
func NewLedgerEntry(merchantID, entryType string, amount int64, currency string, balanceAfter int64, description string) (*LedgerEntry, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("%w: 商户ID不能为空", ErrInvalidArgument)
	}
	if !validLedgerTypes[entryType] {
		return nil, fmt.Errorf("%w: 未知分录类型 %s", ErrInvalidArgument, entryType)
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: 分录金额不能为0", ErrInvalidAmount)
	}
	cur, err := NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	if balanceAfter < 0 {
		return nil, fmt.Errorf("%w: 分录后余额不能为负数", ErrInsufficientBalance)
	}

	return &LedgerEntry{
		ID:           uuid.NewString(),
		MerchantID:   merchantID,
		EntryType:    entryType,
		Amount:       amount,
		Currency:     cur,
		BalanceAfter: balanceAfter,
		Description:  description,
		CreatedAt:    time.Now(),
	}, nil
}

// ForPayment 关联支付单
func (e *LedgerEntry) ForPayment(paymentID string) *LedgerEntry {
	e.PaymentID = &paymentID
	return e
}

// ForWithdrawal 关联提现单
func (e *LedgerEntry) ForWithdrawal(withdrawalID string) *LedgerEntry {
	e.WithdrawalID = &withdrawalID
	return e
}

// SumLedger 对一组分录求和，即从账本重算出的可用余额
func SumLedger(entries []*LedgerEntry) int64 {
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	return sum
}
