package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"merchantpay/internal/config"
	"merchantpay/internal/event"
	"merchantpay/internal/infrastructure/mq"
	"merchantpay/internal/model"
	"merchantpay/internal/repository"
	"merchantpay/internal/workflow"
	"merchantpay/pkg/idgen"

	"gorm.io/gorm"
)

type WithdrawalService struct {
	db             *gorm.DB
	publisher      mq.Publisher
	topics         config.KafkaTopicConfig
	withdrawalRepo *repository.WithdrawalRepository
}

func NewWithdrawalService(db *gorm.DB, publisher mq.Publisher, topics config.KafkaTopicConfig) *WithdrawalService {
	return &WithdrawalService{
		db:             db,
		publisher:      publisher,
		topics:         topics,
		withdrawalRepo: repository.NewWithdrawalRepository(db),
	}
}

type CreateWithdrawalRequest struct {
	Amount            int64  `json:"amount_in_minor_units" binding:"required"`
	Currency          string `json:"currency" binding:"required"`
	BankAccountNumber string `json:"bank_account_number" binding:"required"`
	BankRoutingNumber string `json:"bank_routing_number" binding:"required"`
}

type FailWithdrawalRequest struct {
	Reason string `json:"reason"`
}

// CreateWithdrawal 申请提现：可用余额转入冻结，账本记一笔负数
func (s *WithdrawalService) CreateWithdrawal(ctx context.Context, merchantID string, req *CreateWithdrawalRequest) (*model.Withdrawal, error) {
	withdrawal, err := model.NewWithdrawal(merchantID, req.Amount, req.Currency, req.BankAccountNumber, req.BankRoutingNumber)
	if err != nil {
		return nil, err
	}

	err = workflow.Run(ctx, s.db, s.publisher, func(c *workflow.Coordinator) error {
		merchant, err := c.Merchants().GetByID(ctx, merchantID)
		if err != nil {
			return err
		}
		if !merchant.IsActive {
			return fmt.Errorf("%w: %s", model.ErrMerchantInactive, merchantID)
		}

		balance, err := c.Balances().GetForUpdate(ctx, merchantID, withdrawal.Currency)
		if err != nil {
			if errors.Is(err, repository.ErrBalanceNotFound) {
				return fmt.Errorf("%w: 没有 %s 余额", model.ErrInsufficientBalance, withdrawal.Currency)
			}
			return err
		}
		if err := balance.Reserve(withdrawal.Amount); err != nil {
			return err
		}
		if err := c.Balances().Update(ctx, balance); err != nil {
			return err
		}

		if err := c.Withdrawals().Create(ctx, withdrawal); err != nil {
			return fmt.Errorf("创建提现单失败: %w", err)
		}

		entry, err := model.NewLedgerEntry(merchantID, model.LedgerWithdrawalRequested, -withdrawal.Amount,
			withdrawal.Currency, balance.Available, "提现申请")
		if err != nil {
			return err
		}
		if err := c.Ledger().Create(ctx, entry.ForWithdrawal(withdrawal.ID)); err != nil {
			return fmt.Errorf("记录账本失败: %w", err)
		}

		return c.Stage(ctx, s.topics.WithdrawalEvents, event.NewWithdrawalRequested(
			withdrawal.ID, merchantID, withdrawal.Amount, withdrawal.Currency,
			withdrawal.BankAccount, withdrawal.RoutingNumber))
	})

	if !committed(err) {
		return nil, err
	}

	log.Printf("[Withdrawal] 提现申请成功: id=%s, merchant=%s, amount=%d %s", withdrawal.ID, merchantID, withdrawal.Amount, withdrawal.Currency)
	return withdrawal, err
}

// getOwned 查询并校验提现单归属，不属于该商户时按不存在处理
func getOwned(ctx context.Context, repo *repository.WithdrawalRepository, merchantID, withdrawalID string) (*model.Withdrawal, error) {
	w, err := repo.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if w.MerchantID != merchantID {
		return nil, repository.ErrWithdrawalNotFound
	}
	return w, nil
}

// ProcessWithdrawal 提交银行处理，分配外部流水号
func (s *WithdrawalService) ProcessWithdrawal(ctx context.Context, merchantID, withdrawalID string) (*model.Withdrawal, error) {
	var withdrawal *model.Withdrawal

	err := workflow.Run(ctx, s.db, s.publisher, func(c *workflow.Coordinator) error {
		w, err := getOwned(ctx, c.Withdrawals(), merchantID, withdrawalID)
		if err != nil {
			return err
		}
		from := w.Status
		if err := w.MarkProcessing(idgen.GenerateExternalTxID()); err != nil {
			return err
		}
		withdrawal = w
		return c.Withdrawals().UpdateStatus(ctx, w, from)
	})

	if !committed(err) {
		return nil, err
	}

	log.Printf("[Withdrawal] 提现处理中: id=%s, external_tx=%s", withdrawal.ID, withdrawal.ExternalTxID)
	return withdrawal, err
}

// CompleteWithdrawal 银行打款成功，扣减冻结金额
//
// 可用余额在申请时已经扣过，这里不再记账
func (s *WithdrawalService) CompleteWithdrawal(ctx context.Context, merchantID, withdrawalID string) (*model.Withdrawal, error) {
	var withdrawal *model.Withdrawal

	err := workflow.Run(ctx, s.db, s.publisher, func(c *workflow.Coordinator) error {
		w, err := getOwned(ctx, c.Withdrawals(), merchantID, withdrawalID)
		if err != nil {
			return err
		}
		from := w.Status
		if err := w.Complete(); err != nil {
			return err
		}
		if err := c.Withdrawals().UpdateStatus(ctx, w, from); err != nil {
			return err
		}

		balance, err := c.Balances().GetForUpdate(ctx, merchantID, w.Currency)
		if err != nil {
			return fmt.Errorf("获取余额失败: %w", err)
		}
		if err := balance.DebitPending(w.Amount); err != nil {
			return err
		}
		withdrawal = w
		return c.Balances().Update(ctx, balance)
	})

	if !committed(err) {
		return nil, err
	}

	log.Printf("[Withdrawal] 提现完成: id=%s, amount=%d", withdrawal.ID, withdrawal.Amount)
	return withdrawal, err
}

// FailWithdrawal 银行拒绝，冻结金额退回可用余额
func (s *WithdrawalService) FailWithdrawal(ctx context.Context, merchantID, withdrawalID, reason string) (*model.Withdrawal, error) {
	var withdrawal *model.Withdrawal

	err := workflow.Run(ctx, s.db, s.publisher, func(c *workflow.Coordinator) error {
		w, err := getOwned(ctx, c.Withdrawals(), merchantID, withdrawalID)
		if err != nil {
			return err
		}
		from := w.Status
		if err := w.Fail(reason); err != nil {
			return err
		}
		if err := c.Withdrawals().UpdateStatus(ctx, w, from); err != nil {
			return err
		}
		if err := s.release(ctx, c, w, model.LedgerWithdrawalFailed, "提现失败退回"); err != nil {
			return err
		}
		withdrawal = w
		return nil
	})

	if !committed(err) {
		return nil, err
	}

	log.Printf("[Withdrawal] 提现失败: id=%s, reason=%s", withdrawal.ID, reason)
	return withdrawal, err
}

// CancelWithdrawal 商户撤销，只允许 PENDING 状态
func (s *WithdrawalService) CancelWithdrawal(ctx context.Context, merchantID, withdrawalID string) (*model.Withdrawal, error) {
	var withdrawal *model.Withdrawal

	err := workflow.Run(ctx, s.db, s.publisher, func(c *workflow.Coordinator) error {
		w, err := getOwned(ctx, c.Withdrawals(), merchantID, withdrawalID)
		if err != nil {
			return err
		}
		from := w.Status
		if err := w.Cancel(); err != nil {
			return err
		}
		if err := c.Withdrawals().UpdateStatus(ctx, w, from); err != nil {
			return err
		}
		if err := s.release(ctx, c, w, model.LedgerWithdrawalCancelled, "提现撤销退回"); err != nil {
			return err
		}
		withdrawal = w
		return c.Stage(ctx, s.topics.WithdrawalEvents, event.NewWithdrawalCancelled(w.ID, merchantID, w.Amount, w.Currency))
	})

	if !committed(err) {
		return nil, err
	}

	log.Printf("[Withdrawal] 提现已撤销: id=%s, amount=%d", withdrawal.ID, withdrawal.Amount)
	return withdrawal, err
}

// release 冻结金额退回可用余额并记一笔正数账
func (s *WithdrawalService) release(ctx context.Context, c *workflow.Coordinator, w *model.Withdrawal, entryType, description string) error {
	balance, err := c.Balances().GetForUpdate(ctx, w.MerchantID, w.Currency)
	if err != nil {
		return fmt.Errorf("获取余额失败: %w", err)
	}
	if err := balance.MovePendingToAvailable(w.Amount); err != nil {
		return err
	}
	if err := c.Balances().Update(ctx, balance); err != nil {
		return err
	}

	entry, err := model.NewLedgerEntry(w.MerchantID, entryType, w.Amount, w.Currency, balance.Available, description)
	if err != nil {
		return err
	}
	if err := c.Ledger().Create(ctx, entry.ForWithdrawal(w.ID)); err != nil {
		return fmt.Errorf("记录账本失败: %w", err)
	}
	return nil
}

func (s *WithdrawalService) GetWithdrawal(ctx context.Context, merchantID, withdrawalID string) (*model.Withdrawal, error) {
	return getOwned(ctx, s.withdrawalRepo, merchantID, withdrawalID)
}

func (s *WithdrawalService) ListWithdrawals(ctx context.Context, merchantID string, limit, offset int) ([]*model.Withdrawal, error) {
	return s.withdrawalRepo.ListByMerchant(ctx, merchantID, limit, offset)
}
