package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// 事件类型，Kafka 消息头 event-type 的取值
const (
	TypePaymentCreated      = "PaymentCreated"
	TypePaymentCompleted    = "PaymentCompleted"
	TypePaymentFlagged      = "PaymentFlagged"
	TypePaymentRefunded     = "PaymentRefunded"
	TypeWithdrawalRequested = "WithdrawalRequested"
	TypeWithdrawalCancelled = "WithdrawalCancelled"
)

var ErrMalformedEvent = errors.New("事件格式不正确")

// Event 领域事件：已经发生的业务事实
type Event interface {
	EventID() string
	EventType() string
	OccurredAt() time.Time
}

// Meta 所有事件共有的字段，序列化到 payload 中
type Meta struct {
	ID       string    `json:"eventId"`
	Type     string    `json:"eventType"`
	Occurred time.Time `json:"occurredAt"`
}

func newMeta(eventType string) Meta {
	return Meta{
		ID:       uuid.NewString(),
		Type:     eventType,
		Occurred: time.Now().UTC(),
	}
}

func (m Meta) EventID() string       { return m.ID }
func (m Meta) EventType() string     { return m.Type }
func (m Meta) OccurredAt() time.Time { return m.Occurred }

// ============================================================================
// 支付事件
// ============================================================================

type PaymentCreated struct {
	Meta
	PaymentID         string `json:"paymentId"`
	MerchantID        string `json:"merchantId"`
	Amount            int64  `json:"amountInMinorUnits"`
	Currency          string `json:"currency"`
	ExternalReference string `json:"externalReference,omitempty"`
	Description       string `json:"description,omitempty"`
}

func NewPaymentCreated(paymentID, merchantID string, amount int64, currency, externalRef, description string) *PaymentCreated {
	return &PaymentCreated{
		Meta:              newMeta(TypePaymentCreated),
		PaymentID:         paymentID,
		MerchantID:        merchantID,
		Amount:            amount,
		Currency:          currency,
		ExternalReference: externalRef,
		Description:       description,
	}
}

type PaymentCompleted struct {
	Meta
	PaymentID     string    `json:"paymentId"`
	MerchantID    string    `json:"merchantId"`
	Amount        int64     `json:"amountInMinorUnits"`
	Currency      string    `json:"currency"`
	NewBalance    int64     `json:"newBalanceInMinorUnits"`
	LedgerEntryID string    `json:"ledgerEntryId"`
	CompletedBy   string    `json:"completedBy"`
	CompletedAt   time.Time `json:"completedAt"`
}

func NewPaymentCompleted(paymentID, merchantID string, amount int64, currency string, newBalance int64, ledgerEntryID, completedBy string) *PaymentCompleted {
	m := newMeta(TypePaymentCompleted)
	return &PaymentCompleted{
		Meta:          m,
		PaymentID:     paymentID,
		MerchantID:    merchantID,
		Amount:        amount,
		Currency:      currency,
		NewBalance:    newBalance,
		LedgerEntryID: ledgerEntryID,
		CompletedBy:   completedBy,
		CompletedAt:   m.Occurred,
	}
}

type PaymentFlagged struct {
	Meta
	PaymentID         string `json:"paymentId"`
	MerchantID        string `json:"merchantId"`
	Amount            int64  `json:"amountInMinorUnits"`
	Currency          string `json:"currency"`
	FlagReason        string `json:"flagReason"`
	ExternalReference string `json:"externalReference,omitempty"`
	Description       string `json:"description,omitempty"`
}

func NewPaymentFlagged(created *PaymentCreated, reason string) *PaymentFlagged {
	return &PaymentFlagged{
		Meta:              newMeta(TypePaymentFlagged),
		PaymentID:         created.PaymentID,
		MerchantID:        created.MerchantID,
		Amount:            created.Amount,
		Currency:          created.Currency,
		FlagReason:        reason,
		ExternalReference: created.ExternalReference,
		Description:       created.Description,
	}
}

type PaymentRefunded struct {
	Meta
	PaymentID      string    `json:"paymentId"`
	MerchantID     string    `json:"merchantId"`
	RefundedAmount int64     `json:"refundedAmountInMinorUnits"`
	Currency       string    `json:"currency"`
	NewBalance     int64     `json:"newBalanceInMinorUnits"`
	LedgerEntryID  string    `json:"ledgerEntryId"`
	RefundReason   string    `json:"refundReason,omitempty"`
	RefundedAt     time.Time `json:"refundedAt"`
}

func NewPaymentRefunded(paymentID, merchantID string, amount int64, currency string, newBalance int64, ledgerEntryID, reason string) *PaymentRefunded {
	m := newMeta(TypePaymentRefunded)
	return &PaymentRefunded{
		Meta:           m,
		PaymentID:      paymentID,
		MerchantID:     merchantID,
		RefundedAmount: amount,
		Currency:       currency,
		NewBalance:     newBalance,
		LedgerEntryID:  ledgerEntryID,
		RefundReason:   reason,
		RefundedAt:     m.Occurred,
	}
}

// ============================================================================
// 提现事件
// ============================================================================

type WithdrawalRequested struct {
	Meta
	WithdrawalID      string `json:"withdrawalId"`
	MerchantID        string `json:"merchantId"`
	Amount            int64  `json:"amountInMinorUnits"`
	Currency          string `json:"currency"`
	BankAccountNumber string `json:"bankAccountNumber"`
	BankRoutingNumber string `json:"bankRoutingNumber"`
}

func NewWithdrawalRequested(withdrawalID, merchantID string, amount int64, currency, bankAccount, routingNumber string) *WithdrawalRequested {
	return &WithdrawalRequested{
		Meta:              newMeta(TypeWithdrawalRequested),
		WithdrawalID:      withdrawalID,
		MerchantID:        merchantID,
		Amount:            amount,
		Currency:          currency,
		BankAccountNumber: bankAccount,
		BankRoutingNumber: routingNumber,
	}
}

type WithdrawalCancelled struct {
	Meta
	WithdrawalID string `json:"withdrawalId"`
	MerchantID   string `json:"merchantId"`
	Amount       int64  `json:"amountInMinorUnits"`
	Currency     string `json:"currency"`
}

func NewWithdrawalCancelled(withdrawalID, merchantID string, amount int64, currency string) *WithdrawalCancelled {
	return &WithdrawalCancelled{
		Meta:         newMeta(TypeWithdrawalCancelled),
		WithdrawalID: withdrawalID,
		MerchantID:   merchantID,
		Amount:       amount,
		Currency:     currency,
	}
}

// ============================================================================
// 解码
// ============================================================================

// DecodePaymentCreated 解析 PaymentCreated 消息体，paymentId 缺失视为格式错误
func DecodePaymentCreated(payload []byte) (*PaymentCreated, error) {
	var evt PaymentCreated
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.PaymentID == "" {
		return nil, fmt.Errorf("%w: 缺少 paymentId", ErrMalformedEvent)
	}
	if evt.Type == "" {
		evt.Type = TypePaymentCreated
	}
	return &evt, nil
}

// Decode 按事件类型解析，未知类型返回 ErrMalformedEvent
func Decode(eventType string, payload []byte) (Event, error) {
	var target Event
	switch eventType {
	case TypePaymentCreated:
		return DecodePaymentCreated(payload)
	case TypePaymentCompleted:
		target = &PaymentCompleted{}
	case TypePaymentFlagged:
		target = &PaymentFlagged{}
	case TypePaymentRefunded:
		target = &PaymentRefunded{}
	case TypeWithdrawalRequested:
		target = &WithdrawalRequested{}
	case TypeWithdrawalCancelled:
		target = &WithdrawalCancelled{}
	default:
		return nil, fmt.Errorf("%w: 未知事件类型 %q", ErrMalformedEvent, eventType)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return target, nil
}
