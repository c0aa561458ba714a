package repository

import (
	"context"

	"merchantpay/internal/model"

	"gorm.io/gorm"
)

// LedgerRepository 账本只追加，没有更新和删除方法
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, entry *model.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// SumByMerchantCurrency 从账本重算可用余额
func (r *LedgerRepository) SumByMerchantCurrency(ctx context.Context, merchantID, currency string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("merchant_id = ? AND currency = ?", merchantID, currency).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// ListByMerchant currency 为空时返回所有币种
func (r *LedgerRepository) ListByMerchant(ctx context.Context, merchantID, currency string, limit, offset int) ([]*model.LedgerEntry, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("merchant_id = ?", merchantID)
		if currency != "" {
			db = db.Where("currency = ?", currency)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []*model.LedgerEntry
	query := r.db.WithContext(ctx).Scopes(scope).Order("created_at DESC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&entries).Error

	return entries, total, err
}

func (r *LedgerRepository) ListByPayment(ctx context.Context, paymentID string) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *LedgerRepository) ListByWithdrawal(ctx context.Context, withdrawalID string) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("withdrawal_id = ?", withdrawalID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}
