package repository

import (
	"context"
	"errors"

	"merchantpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBalanceNotFound = errors.New("余额不存在")
	// ErrConcurrentModification 版本号不匹配，余额已被其他事务修改
	ErrConcurrentModification = errors.New("余额已被并发修改，请重试")
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) GetByMerchantCurrency(ctx context.Context, merchantID, currency string) (*model.Balance, error) {
	var balance model.Balance
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND currency = ?", merchantID, currency).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	balance.MarkPersisted()
	return &balance, nil
}

// GetForUpdate 行锁读取，事务结束前其他写者阻塞
func (r *BalanceRepository) GetForUpdate(ctx context.Context, merchantID, currency string) (*model.Balance, error) {
	var balance model.Balance
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("merchant_id = ? AND currency = ?", merchantID, currency).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	balance.MarkPersisted()
	return &balance, nil
}

// GetOrCreate 第一次入账时创建余额行
//
// 并发创建依赖唯一索引 uk_balance_merchant_currency，冲突时忽略并加锁重新读取。
// MySQL 可重复读下普通读停留在事务快照，看不到并发事务刚提交的行，只有锁定读能读到；
// 仍然读不到时按并发冲突处理，调用方整体重试
func (r *BalanceRepository) GetOrCreate(ctx context.Context, merchantID, currency string) (*model.Balance, error) {
	balance, err := r.GetByMerchantCurrency(ctx, merchantID, currency)
	if err == nil {
		return balance, nil
	}

	if !errors.Is(err, ErrBalanceNotFound) {
		return nil, err
	}

	newBalance, err := model.NewBalance(merchantID, currency)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "merchant_id"}, {Name: "currency"}},
			DoNothing: true,
		}).
		Create(newBalance).Error

	if err != nil {
		return nil, err
	}

	balance, err = r.GetForUpdate(ctx, merchantID, currency)
	if errors.Is(err, ErrBalanceNotFound) {
		return nil, ErrConcurrentModification
	}
	return balance, err
}

// Update 按读取时的版本号做 CAS 更新
func (r *BalanceRepository) Update(ctx context.Context, balance *model.Balance) error {
	result := r.db.WithContext(ctx).
		Model(&model.Balance{}).
		Where("id = ? AND version = ?", balance.ID, balance.PersistedVersion()).
		Updates(map[string]interface{}{
			"available":  balance.Available,
			"pending":    balance.Pending,
			"version":    balance.Version,
			"updated_at": balance.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrConcurrentModification
	}

	balance.MarkPersisted()
	return nil
}

func (r *BalanceRepository) ListByMerchant(ctx context.Context, merchantID string) ([]*model.Balance, error) {
	var balances []*model.Balance
	err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("currency ASC").
		Find(&balances).Error
	return balances, err
}

func (r *BalanceRepository) ListAll(ctx context.Context) ([]*model.Balance, error) {
	var balances []*model.Balance
	err := r.db.WithContext(ctx).
		Order("merchant_id ASC, currency ASC").
		Find(&balances).Error
	return balances, err
}
