package service

import (
	"context"
	"errors"
	"log"

	"merchantpay/internal/model"
	"merchantpay/internal/repository"

	"gorm.io/gorm"
)

// BalanceVerification 余额表与账本累计值的对账结果
type BalanceVerification struct {
	MerchantID            string `json:"merchant_id"`
	Currency              string `json:"currency"`
	BalanceTableValue     int64  `json:"balance_table_value"`
	LedgerCalculatedValue int64  `json:"ledger_calculated_value"`
	IsValid               bool   `json:"is_valid"`
	Difference            int64  `json:"difference"` // 账本 - 余额表
}

type LedgerService struct {
	db          *gorm.DB
	balanceRepo *repository.BalanceRepository
	ledgerRepo  *repository.LedgerRepository
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{
		db:          db,
		balanceRepo: repository.NewBalanceRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
	}
}

// VerifyBalance 对账，余额表和账本在同一个事务快照里读取
func (s *LedgerService) VerifyBalance(ctx context.Context, merchantID, currency string) (*BalanceVerification, error) {
	cur, err := model.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}

	result := &BalanceVerification{MerchantID: merchantID, Currency: cur}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := repository.NewBalanceRepository(tx).GetByMerchantCurrency(ctx, merchantID, cur)
		switch {
		case err == nil:
			result.BalanceTableValue = balance.Available
		case errors.Is(err, repository.ErrBalanceNotFound):
			// 从未入账，按0处理
		default:
			return err
		}

		sum, err := repository.NewLedgerRepository(tx).SumByMerchantCurrency(ctx, merchantID, cur)
		if err != nil {
			return err
		}
		result.LedgerCalculatedValue = sum
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Difference = result.LedgerCalculatedValue - result.BalanceTableValue
	result.IsValid = result.Difference == 0
	if !result.IsValid {
		log.Printf("[Ledger] [ERROR] 余额与账本不一致: merchant=%s, currency=%s, balance=%d, ledger=%d, diff=%d",
			merchantID, cur, result.BalanceTableValue, result.LedgerCalculatedValue, result.Difference)
	}
	return result, nil
}

// VerifyAll 逐个余额行对账，返回全部结果
func (s *LedgerService) VerifyAll(ctx context.Context) ([]*BalanceVerification, error) {
	balances, err := s.balanceRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*BalanceVerification, 0, len(balances))
	for _, b := range balances {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		v, err := s.VerifyBalance(ctx, b.MerchantID, b.Currency)
		if err != nil {
			return results, err
		}
		results = append(results, v)
	}
	return results, nil
}

// History 账本流水，currency 为空时返回全部币种
func (s *LedgerService) History(ctx context.Context, merchantID, currency string, limit, offset int) ([]*model.LedgerEntry, int64, error) {
	if currency != "" {
		cur, err := model.NormalizeCurrency(currency)
		if err != nil {
			return nil, 0, err
		}
		currency = cur
	}
	return s.ledgerRepo.ListByMerchant(ctx, merchantID, currency, limit, offset)
}
