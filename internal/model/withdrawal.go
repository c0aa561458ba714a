package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	WithdrawalStatusPending    = "PENDING"
	WithdrawalStatusProcessing = "PROCESSING"
	WithdrawalStatusCompleted  = "COMPLETED"
	WithdrawalStatusCancelled  = "CANCELLED"
	WithdrawalStatusFailed     = "FAILED"
)

var WithdrawalStatusTransitions = map[string][]string{
	WithdrawalStatusPending:    {WithdrawalStatusProcessing, WithdrawalStatusCancelled, WithdrawalStatusFailed},
	WithdrawalStatusProcessing: {WithdrawalStatusCompleted, WithdrawalStatusFailed},
}

// Withdrawal 提现单
//
// 创建时资金从可用转入冻结；完成时扣减冻结；取消/失败时冻结释放回可用。
type Withdrawal struct {
	ID            string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	MerchantID    string     `gorm:"type:varchar(36);index:idx_withdrawal_merchant_status;not null" json:"merchant_id"`
	Amount        int64      `gorm:"not null" json:"amount"`
	Currency      string     `gorm:"type:varchar(3);not null" json:"currency"`
	Status        string     `gorm:"type:varchar(20);index:idx_withdrawal_merchant_status;not null" json:"status"`
	BankAccount   string     `gorm:"type:varchar(64);not null" json:"bank_account_number"`
	RoutingNumber string     `gorm:"type:varchar(32);not null" json:"bank_routing_number"`
	ExternalTxID  string     `gorm:"type:varchar(64)" json:"external_transaction_id,omitempty"`
	FailureReason string     `gorm:"type:varchar(256)" json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}

func NewWithdrawal(merchantID string, amount int64, currency, bankAccount, routingNumber string) (*Withdrawal, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("%w: 商户ID不能为空", ErrInvalidArgument)
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	cur, err := NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	if bankAccount == "" || routingNumber == "" {
		return nil, fmt.Errorf("%w: 银行账号和路由号必填", ErrInvalidArgument)
	}
	now := time.Now()
	return &Withdrawal{
		ID:            uuid.NewString(),
		MerchantID:    merchantID,
		Amount:        amount,
		Currency:      cur,
		Status:        WithdrawalStatusPending,
		BankAccount:   bankAccount,
		RoutingNumber: routingNumber,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (w *Withdrawal) transition(target string) error {
	if !CanTransitionTo(WithdrawalStatusTransitions, w.Status, target) {
		return fmt.Errorf("%w: 提现单 %s 不能从 %s 变为 %s", ErrInvalidTransition, w.ID, w.Status, target)
	}
	w.Status = target
	w.UpdatedAt = time.Now()
	return nil
}

// MarkProcessing PENDING -> PROCESSING，记录银行侧流水号
func (w *Withdrawal) MarkProcessing(externalTxID string) error {
	if externalTxID == "" {
		return fmt.Errorf("%w: 外部流水号不能为空", ErrInvalidArgument)
	}
	if err := w.transition(WithdrawalStatusProcessing); err != nil {
		return err
	}
	now := time.Now()
	w.ExternalTxID = externalTxID
	w.ProcessedAt = &now
	return nil
}

// Complete PROCESSING -> COMPLETED
func (w *Withdrawal) Complete() error {
	if err := w.transition(WithdrawalStatusCompleted); err != nil {
		return err
	}
	now := time.Now()
	w.CompletedAt = &now
	return nil
}

// Fail PENDING|PROCESSING -> FAILED
func (w *Withdrawal) Fail(reason string) error {
	if err := w.transition(WithdrawalStatusFailed); err != nil {
		return err
	}
	now := time.Now()
	w.FailureReason = reason
	w.FailedAt = &now
	return nil
}

// Cancel PENDING -> CANCELLED，已进入银行处理的不能取消
func (w *Withdrawal) Cancel() error {
	if err := w.transition(WithdrawalStatusCancelled); err != nil {
		return err
	}
	now := time.Now()
	w.CancelledAt = &now
	return nil
}
