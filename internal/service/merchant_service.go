package service

import (
	"context"
	"fmt"
	"log"

	"merchantpay/internal/model"
	"merchantpay/internal/repository"

	"gorm.io/gorm"
)

type MerchantService struct {
	db           *gorm.DB
	merchantRepo *repository.MerchantRepository
	balanceRepo  *repository.BalanceRepository
}

func NewMerchantService(db *gorm.DB) *MerchantService {
	return &MerchantService{
		db:           db,
		merchantRepo: repository.NewMerchantRepository(db),
		balanceRepo:  repository.NewBalanceRepository(db),
	}
}

type CreateMerchantRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
}

func (s *MerchantService) CreateMerchant(ctx context.Context, req *CreateMerchantRequest) (*model.Merchant, error) {
	merchant, err := model.NewMerchant(req.Name, req.Email)
	if err != nil {
		return nil, err
	}

	existing, err := s.merchantRepo.GetByEmail(ctx, merchant.Email)
	if err != nil {
		return nil, fmt.Errorf("查询商户失败: %w", err)
	}
	if existing != nil {
		return nil, repository.ErrMerchantExists
	}

	if err := s.merchantRepo.Create(ctx, merchant); err != nil {
		return nil, err
	}

	log.Printf("[Merchant] 商户创建成功: id=%s, email=%s", merchant.ID, merchant.Email)
	return merchant, nil
}

func (s *MerchantService) GetMerchant(ctx context.Context, id string) (*model.Merchant, error) {
	return s.merchantRepo.GetByID(ctx, id)
}

func (s *MerchantService) ListActiveMerchants(ctx context.Context) ([]*model.Merchant, error) {
	return s.merchantRepo.ListActive(ctx)
}

func (s *MerchantService) DeactivateMerchant(ctx context.Context, id string) (*model.Merchant, error) {
	merchant, err := s.merchantRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	merchant.Deactivate()
	if err := s.merchantRepo.UpdateActive(ctx, merchant); err != nil {
		return nil, err
	}
	log.Printf("[Merchant] 商户已停用: id=%s", id)
	return merchant, nil
}

func (s *MerchantService) ActivateMerchant(ctx context.Context, id string) (*model.Merchant, error) {
	merchant, err := s.merchantRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	merchant.Activate()
	if err := s.merchantRepo.UpdateActive(ctx, merchant); err != nil {
		return nil, err
	}
	log.Printf("[Merchant] 商户已启用: id=%s", id)
	return merchant, nil
}

// GetBalances 商户所有币种余额
func (s *MerchantService) GetBalances(ctx context.Context, merchantID string) ([]*model.Balance, error) {
	if _, err := s.merchantRepo.GetByID(ctx, merchantID); err != nil {
		return nil, err
	}
	return s.balanceRepo.ListByMerchant(ctx, merchantID)
}

func (s *MerchantService) GetBalance(ctx context.Context, merchantID, currency string) (*model.Balance, error) {
	cur, err := model.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	if _, err := s.merchantRepo.GetByID(ctx, merchantID); err != nil {
		return nil, err
	}
	return s.balanceRepo.GetByMerchantCurrency(ctx, merchantID, cur)
}
