package service

import (
	"context"
	"fmt"
	"log"

	"merchantpay/internal/config"
	"merchantpay/internal/event"
	"merchantpay/internal/infrastructure/mq"
	"merchantpay/internal/model"
	"merchantpay/internal/repository"
	"merchantpay/internal/workflow"

	"gorm.io/gorm"
)

type PaymentService struct {
	db           *gorm.DB
	publisher    mq.Publisher
	topics       config.KafkaTopicConfig
	paymentRepo  *repository.PaymentRepository
	merchantRepo *repository.MerchantRepository
}

func NewPaymentService(db *gorm.DB, publisher mq.Publisher, topics config.KafkaTopicConfig) *PaymentService {
	return &PaymentService{
		db:           db,
		publisher:    publisher,
		topics:       topics,
		paymentRepo:  repository.NewPaymentRepository(db),
		merchantRepo: repository.NewMerchantRepository(db),
	}
}

type CreatePaymentRequest struct {
	Amount            int64  `json:"amount_in_minor_units" binding:"required"`
	Currency          string `json:"currency" binding:"required"`
	ExternalReference string `json:"external_reference"`
	Description       string `json:"description"`
}

type BulkCreatePaymentsRequest struct {
	Payments []CreatePaymentRequest `json:"payments" binding:"required"`
}

// RefundRequest Amount 为0表示全额退款
type RefundRequest struct {
	Amount int64  `json:"refund_amount_in_minor_units"`
	Reason string `json:"reason"`
}

func (s *PaymentService) activeMerchant(ctx context.Context, merchantID string) error {
	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		return err
	}
	if !merchant.IsActive {
		return fmt.Errorf("%w: %s", model.ErrMerchantInactive, merchantID)
	}
	return nil
}

// CreatePayment 创建待处理支付单，提交后发布 PaymentCreated 触发风控
func (s *PaymentService) CreatePayment(ctx context.Context, merchantID string, req *CreatePaymentRequest) (*model.Payment, error) {
	payment, err := model.NewPayment(merchantID, req.Amount, req.Currency, req.ExternalReference, req.Description)
	if err != nil {
		return nil, err
	}

	if err := s.activeMerchant(ctx, merchantID); err != nil {
		return nil, err
	}

	err = workflow.Run(ctx, s.db, s.publisher, func(c *workflow.Coordinator) error {
		if err := c.Payments().Create(ctx, payment); err != nil {
			return fmt.Errorf("创建支付单失败: %w", err)
		}
		return c.Stage(ctx, s.topics.PaymentEvents, event.NewPaymentCreated(
			payment.ID, payment.MerchantID, payment.Amount, payment.Currency, payment.ExternalRef, payment.Description))
	})

	if !committed(err) {
		return nil, err
	}

	log.Printf("[Payment] 支付单创建成功: id=%s, merchant=%s, amount=%d %s", payment.ID, merchantID, payment.Amount, payment.Currency)
	return payment, err
}

// CreateBulkPayments 批量创建，任意一笔校验失败则全部不创建
func (s *PaymentService) CreateBulkPayments(ctx context.Context, merchantID string, reqs []CreatePaymentRequest) ([]*model.Payment, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: 批量支付不能为空", model.ErrInvalidArgument)
	}

	payments := make([]*model.Payment, 0, len(reqs))
	for i := range reqs {
		req := reqs[i]
		payment, err := model.NewPayment(merchantID, req.Amount, req.Currency, req.ExternalReference, req.Description)
		if err != nil {
			return nil, fmt.Errorf("第 %d 笔支付不合法: %w", i+1, err)
		}
		payments = append(payments, payment)
	}

	if err := s.activeMerchant(ctx, merchantID); err != nil {
		return nil, err
	}

	err := workflow.Run(ctx, s.db, s.publisher, func(c *workflow.Coordinator) error {
		if err := c.Payments().CreateBatch(ctx, payments); err != nil {
			return fmt.Errorf("批量创建支付单失败: %w", err)
		}
		for _, p := range payments {
			evt := event.NewPaymentCreated(p.ID, p.MerchantID, p.Amount, p.Currency, p.ExternalRef, p.Description)
			if err := c.Stage(ctx, s.topics.PaymentEvents, evt); err != nil {
				return err
			}
		}
		return nil
	})

	if !committed(err) {
		return nil, err
	}

	log.Printf("[Payment] 批量创建支付单成功: merchant=%s, count=%d", merchantID, len(payments))
	return payments, err
}

// CompletePayment 完成支付：支付单状态、余额、账本在同一事务内
//
// 余额版本号冲突返回 repository.ErrConcurrentModification，调用方可整体重试
func (s *PaymentService) CompletePayment(ctx context.Context, paymentID, completedBy string) (*model.Payment, error) {
	var payment *model.Payment

	err := workflow.Run(ctx, s.db, s.publisher, func(c *workflow.Coordinator) error {
		p, err := c.Payments().GetByID(ctx, paymentID)
		if err != nil {
			return err
		}

		from := p.Status
		if err := p.Complete(completedBy); err != nil {
			return err
		}
		if err := c.Payments().UpdateStatus(ctx, p, from); err != nil {
			return err
		}

		balance, err := c.Balances().GetOrCreate(ctx, p.MerchantID, p.Currency)
		if err != nil {
			return fmt.Errorf("获取余额失败: %w", err)
		}
		if err := balance.CreditAvailable(p.Amount); err != nil {
			return err
		}
		if err := c.Balances().Update(ctx, balance); err != nil {
			return err
		}

		entry, err := model.NewLedgerEntry(p.MerchantID, model.LedgerPaymentReceived, p.Amount, p.Currency,
			balance.Available, fmt.Sprintf("支付入账 %s", p.ID))
		if err != nil {
			return err
		}
		if err := c.Ledger().Create(ctx, entry.ForPayment(p.ID)); err != nil {
			return fmt.Errorf("记录账本失败: %w", err)
		}

		payment = p
		return c.Stage(ctx, s.topics.PaymentEvents, event.NewPaymentCompleted(
			p.ID, p.MerchantID, p.Amount, p.Currency, balance.Available, entry.ID, completedBy))
	})

	if !committed(err) {
		return nil, err
	}

	log.Printf("[Payment] 支付完成: id=%s, merchant=%s, amount=%d, by=%s", payment.ID, payment.MerchantID, payment.Amount, completedBy)
	return payment, err
}

func (s *PaymentService) FailPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	var payment *model.Payment

	err := workflow.Run(ctx, s.db, s.publisher, func(c *workflow.Coordinator) error {
		p, err := c.Payments().GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		from := p.Status
		if err := p.Fail(); err != nil {
			return err
		}
		payment = p
		return c.Payments().UpdateStatus(ctx, p, from)
	})

	if !committed(err) {
		return nil, err
	}

	log.Printf("[Payment] 支付失败: id=%s", paymentID)
	return payment, err
}

// RefundPayment 退款，余额行加锁后扣减可用余额
func (s *PaymentService) RefundPayment(ctx context.Context, merchantID, paymentID string, req *RefundRequest) (*model.Payment, error) {
	var payment *model.Payment

	err := workflow.Run(ctx, s.db, s.publisher, func(c *workflow.Coordinator) error {
		p, err := c.Payments().GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.MerchantID != merchantID {
			return repository.ErrPaymentNotFound
		}

		from := p.Status
		refunded, err := p.Refund(req.Amount, req.Reason)
		if err != nil {
			return err
		}
		if err := c.Payments().UpdateStatus(ctx, p, from); err != nil {
			return err
		}

		balance, err := c.Balances().GetForUpdate(ctx, p.MerchantID, p.Currency)
		if err != nil {
			return fmt.Errorf("获取余额失败: %w", err)
		}
		if err := balance.DebitAvailable(refunded); err != nil {
			return err
		}
		if err := c.Balances().Update(ctx, balance); err != nil {
			return err
		}

		description := "退款"
		if req.Reason != "" {
			description = "退款: " + req.Reason
		}
		entry, err := model.NewLedgerEntry(p.MerchantID, model.LedgerPaymentRefunded, -refunded, p.Currency,
			balance.Available, description)
		if err != nil {
			return err
		}
		if err := c.Ledger().Create(ctx, entry.ForPayment(p.ID)); err != nil {
			return fmt.Errorf("记录账本失败: %w", err)
		}

		payment = p
		return c.Stage(ctx, s.topics.PaymentEvents, event.NewPaymentRefunded(
			p.ID, p.MerchantID, refunded, p.Currency, balance.Available, entry.ID, req.Reason))
	})

	if !committed(err) {
		return nil, err
	}

	log.Printf("[Payment] 退款成功: id=%s, merchant=%s, amount=%d", payment.ID, merchantID, payment.RefundedAmount)
	return payment, err
}

func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	return s.paymentRepo.GetByID(ctx, paymentID)
}

func (s *PaymentService) ListPayments(ctx context.Context, merchantID string, filter repository.PaymentFilter) ([]*model.Payment, int64, error) {
	if filter.Status != "" {
		if _, ok := validPaymentStatus[filter.Status]; !ok {
			return nil, 0, fmt.Errorf("%w: 未知支付状态 %s", model.ErrInvalidArgument, filter.Status)
		}
	}
	return s.paymentRepo.ListByMerchant(ctx, merchantID, filter)
}

// CountCompleted 商户已完成的支付笔数，风控规则使用
func (s *PaymentService) CountCompleted(ctx context.Context, merchantID string) (int64, error) {
	return s.paymentRepo.CountByMerchantAndStatus(ctx, merchantID, model.PaymentStatusCompleted)
}

var validPaymentStatus = map[string]struct{}{
	model.PaymentStatusPending:   {},
	model.PaymentStatusCompleted: {},
	model.PaymentStatusFailed:    {},
	model.PaymentStatusRefunded:  {},
}
