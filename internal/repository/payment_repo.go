package repository

import (
	"context"
	"errors"
	"fmt"

	"merchantpay/internal/model"

	"gorm.io/gorm"
)

var ErrPaymentNotFound = errors.New("支付单不存在")

// PaymentFilter 列表查询条件，Status 为空表示不过滤
type PaymentFilter struct {
	Status string
	Limit  int
	Offset int
}

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *PaymentRepository) CreateBatch(ctx context.Context, payments []*model.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(payments, 100).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// UpdateStatus 以 fromStatus 为条件更新，并发下只有一个请求能成功
func (r *PaymentRepository) UpdateStatus(ctx context.Context, payment *model.Payment, fromStatus string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND status = ?", payment.ID, fromStatus).
		Updates(map[string]interface{}{
			"status":          payment.Status,
			"completed_by":    payment.CompletedBy,
			"completed_at":    payment.CompletedAt,
			"failed_at":       payment.FailedAt,
			"refunded_amount": payment.RefundedAmount,
			"refund_reason":   payment.RefundReason,
			"refunded_at":     payment.RefundedAt,
			"updated_at":      payment.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: 支付单 %s 状态已不是 %s", model.ErrInvalidTransition, payment.ID, fromStatus)
	}

	return nil
}

func (r *PaymentRepository) ListByMerchant(ctx context.Context, merchantID string, filter PaymentFilter) ([]*model.Payment, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("merchant_id = ?", merchantID)
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Payment{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []*model.Payment
	query := r.db.WithContext(ctx).Scopes(scope).Order("created_at DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	err := query.Find(&payments).Error

	return payments, total, err
}

func (r *PaymentRepository) CountByMerchantAndStatus(ctx context.Context, merchantID, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("merchant_id = ? AND status = ?", merchantID, status).
		Count(&count).Error
	return count, err
}
