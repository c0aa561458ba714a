package repository

import (
	"context"
	"errors"
	"fmt"

	"merchantpay/internal/model"

	"gorm.io/gorm"
)

var ErrWithdrawalNotFound = errors.New("提现单不存在")

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, withdrawal *model.Withdrawal) error {
	return r.db.WithContext(ctx).Create(withdrawal).Error
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id string) (*model.Withdrawal, error) {
	var withdrawal model.Withdrawal
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&withdrawal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &withdrawal, nil
}

func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, withdrawal *model.Withdrawal, fromStatus string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Withdrawal{}).
		Where("id = ? AND status = ?", withdrawal.ID, fromStatus).
		Updates(map[string]interface{}{
			"status":         withdrawal.Status,
			"external_tx_id": withdrawal.ExternalTxID,
			"failure_reason": withdrawal.FailureReason,
			"processed_at":   withdrawal.ProcessedAt,
			"completed_at":   withdrawal.CompletedAt,
			"cancelled_at":   withdrawal.CancelledAt,
			"failed_at":      withdrawal.FailedAt,
			"updated_at":     withdrawal.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: 提现单 %s 状态已不是 %s", model.ErrInvalidTransition, withdrawal.ID, fromStatus)
	}

	return nil
}

func (r *WithdrawalRepository) ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*model.Withdrawal, error) {
	var withdrawals []*model.Withdrawal
	query := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at DESC").
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&withdrawals).Error
	return withdrawals, err
}
