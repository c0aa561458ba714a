package repository

import (
	"context"
	"errors"

	"merchantpay/internal/model"

	"gorm.io/gorm"
)

var (
	ErrMerchantNotFound = errors.New("商户不存在")
	ErrMerchantExists   = errors.New("商户邮箱已被注册")
)

type MerchantRepository struct {
	db *gorm.DB
}

func NewMerchantRepository(db *gorm.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

func (r *MerchantRepository) Create(ctx context.Context, merchant *model.Merchant) error {
	err := r.db.WithContext(ctx).Create(merchant).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrMerchantExists
	}
	return err
}

func (r *MerchantRepository) GetByID(ctx context.Context, id string) (*model.Merchant, error) {
	var merchant model.Merchant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&merchant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMerchantNotFound
		}
		return nil, err
	}
	return &merchant, nil
}

// GetByEmail 不存在返回 nil, nil
func (r *MerchantRepository) GetByEmail(ctx context.Context, email string) (*model.Merchant, error) {
	var merchant model.Merchant
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&merchant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}

func (r *MerchantRepository) ListActive(ctx context.Context) ([]*model.Merchant, error) {
	var merchants []*model.Merchant
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&merchants).Error
	return merchants, err
}

func (r *MerchantRepository) UpdateActive(ctx context.Context, merchant *model.Merchant) error {
	result := r.db.WithContext(ctx).
		Model(&model.Merchant{}).
		Where("id = ?", merchant.ID).
		Updates(map[string]interface{}{
			"is_active":  merchant.IsActive,
			"updated_at": merchant.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMerchantNotFound
	}
	return nil
}
