package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Balance 商户余额表（按 商户+币种 一行）
//
// 【重要】余额只能通过下面几个原子操作修改：
//  1. CreditAvailable / CreditPending    入账
//  2. DebitAvailable / DebitPending      出账
//  3. MovePendingToAvailable             冻结资金释放
//
// 每次成功修改 Version+1，持久化时按加载时的版本号做 CAS 更新（乐观锁）。
// 任何操作都不会把余额改成负数，金额不合法或余额不足直接返回错误，不做截断。
type Balance struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	MerchantID string    `gorm:"type:varchar(36);uniqueIndex:uk_balance_merchant_currency;not null" json:"merchant_id"`
	Currency   string    `gorm:"type:varchar(3);uniqueIndex:uk_balance_merchant_currency;not null" json:"currency"`
	Available  int64     `gorm:"not null;default:0" json:"available"` // 可用余额（最小货币单位）
	Pending    int64     `gorm:"not null;default:0" json:"pending"`   // 冻结中（提现预留）
	Version    int64     `gorm:"not null;default:0" json:"version"`   // 乐观锁版本号
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// 从数据库读出时的版本号，CAS 更新时作为 WHERE 条件
	persistedVersion int64 `gorm:"-"`
}

func (Balance) TableName() string {
	return "balances"
}

// NewBalance 创建一个空余额
func NewBalance(merchantID, currency string) (*Balance, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("%w: 商户ID不能为空", ErrInvalidArgument)
	}
	cur, err := NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	return &Balance{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		Currency:   cur,
	}, nil
}

// MarkPersisted 由仓储层在读取/写入成功后调用
func (b *Balance) MarkPersisted() {
	b.persistedVersion = b.Version
}

// PersistedVersion 返回最近一次与数据库一致时的版本号
func (b *Balance) PersistedVersion() int64 {
	return b.persistedVersion
}

// Total 可用 + 冻结
func (b *Balance) Total() int64 {
	return b.Available + b.Pending
}

func (b *Balance) CreditAvailable(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	b.Available += amount
	b.touch()
	return nil
}

func (b *Balance) CreditPending(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	b.Pending += amount
	b.touch()
	return nil
}

func (b *Balance) DebitAvailable(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if b.Available < amount {
		return fmt.Errorf("%w: 可用余额 %d, 需要 %d", ErrInsufficientBalance, b.Available, amount)
	}
	b.Available -= amount
	b.touch()
	return nil
}

func (b *Balance) DebitPending(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if b.Pending < amount {
		return fmt.Errorf("%w: 冻结余额 %d, 需要 %d", ErrInsufficientBalance, b.Pending, amount)
	}
	b.Pending -= amount
	b.touch()
	return nil
}

// MovePendingToAvailable 释放冻结资金（提现取消/失败）
func (b *Balance) MovePendingToAvailable(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if b.Pending < amount {
		return fmt.Errorf("%w: 冻结余额 %d, 需要 %d", ErrInsufficientBalance, b.Pending, amount)
	}
	b.Pending -= amount
	b.Available += amount
	b.touch()
	return nil
}

// Reserve 冻结资金（提现申请）：可用 -> 冻结，作为一次版本变更
func (b *Balance) Reserve(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if b.Available < amount {
		return fmt.Errorf("%w: 可用余额 %d, 需要 %d", ErrInsufficientBalance, b.Available, amount)
	}
	b.Available -= amount
	b.Pending += amount
	b.touch()
	return nil
}

func (b *Balance) touch() {
	b.Version++
	b.UpdatedAt = time.Now()
}
