package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
)

// 完成方式
const (
	CompletedByManual      = "MANUAL"
	CompletedByFraudReview = "FRAUD_REVIEW"
)

var PaymentStatusTransitions = map[string][]string{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted: {PaymentStatusRefunded},
}

// CanTransitionTo 状态机校验，终态没有出边
func CanTransitionTo(transitions map[string][]string, currentStatus, targetStatus string) bool {
	allowedStatuses, exists := transitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

type Payment struct {
	ID             string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	MerchantID     string     `gorm:"type:varchar(36);index:idx_payment_merchant_status;not null" json:"merchant_id"`
	Amount         int64      `gorm:"not null" json:"amount"`
	Currency       string     `gorm:"type:varchar(3);not null" json:"currency"`
	Status         string     `gorm:"type:varchar(20);index:idx_payment_merchant_status;not null" json:"status"`
	ExternalRef    string     `gorm:"type:varchar(128)" json:"external_reference"`
	Description    string     `gorm:"type:varchar(256)" json:"description"`
	CompletedBy    string     `gorm:"type:varchar(20)" json:"completed_by,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	RefundedAmount int64      `gorm:"not null;default:0" json:"refunded_amount"`
	RefundReason   string     `gorm:"type:varchar(256)" json:"refund_reason,omitempty"`
	RefundedAt     *time.Time `json:"refunded_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// NewPayment 创建待处理的支付单
func NewPayment(merchantID string, amount int64, currency, externalRef, description string) (*Payment, error) {
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
	now := time.Now()
	return &Payment{
		ID:          uuid.NewString(),
		MerchantID:  merchantID,
		Amount:      amount,
		Currency:    cur,
		Status:      PaymentStatusPending,
		ExternalRef: externalRef,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (p *Payment) transition(target string) error {
	if !CanTransitionTo(PaymentStatusTransitions, p.Status, target) {
		return fmt.Errorf("%w: 支付单 %s 不能从 %s 变为 %s", ErrInvalidTransition, p.ID, p.Status, target)
	}
	p.Status = target
	p.UpdatedAt = time.Now()
	return nil
}

// Complete PENDING -> COMPLETED
func (p *Payment) Complete(by string) error {
	if by != CompletedByManual && by != CompletedByFraudReview {
		return fmt.Errorf("%w: 未知完成方式 %s", ErrInvalidArgument, by)
	}
	if err := p.transition(PaymentStatusCompleted); err != nil {
		return err
	}
	now := time.Now()
	p.CompletedBy = by
	p.CompletedAt = &now
	return nil
}

// Fail PENDING -> FAILED
func (p *Payment) Fail() error {
	if err := p.transition(PaymentStatusFailed); err != nil {
		return err
	}
	now := time.Now()
	p.FailedAt = &now
	return nil
}

// Refund COMPLETED -> REFUNDED，amount 为0表示全额退款
func (p *Payment) Refund(amount int64, reason string) (int64, error) {
	if amount == 0 {
		amount = p.Amount
	}
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	if amount > p.Amount {
		return 0, fmt.Errorf("%w: 退款金额 %d 超过支付金额 %d", ErrInvalidAmount, amount, p.Amount)
	}
	if err := p.transition(PaymentStatusRefunded); err != nil {
		return 0, err
	}
	now := time.Now()
	p.RefundedAmount = amount
	p.RefundReason = reason
	p.RefundedAt = &now
	return amount, nil
}
