package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"merchantpay/internal/event"
	"merchantpay/internal/infrastructure/mq"
	"merchantpay/internal/model"
	"merchantpay/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrTxActive = errors.New("事务已开启")
	ErrNoTx     = errors.New("事务未开启")
)

// ============================================================================
// 事务协调器
// ============================================================================
//
// 一次业务操作对应一个 Coordinator：
//
//	Begin -> 通过 Payments()/Balances()/Ledger()... 读写 -> Stage 领域事件 -> Commit
//
// Stage 的事件写入 outbox_messages，与业务数据同一个事务提交。
// Commit 成功后才投递到 Kafka；提交失败则回滚，什么都不发。
// 提交后立即投递失败的消息留在 outbox 中由 OutboxRelay 重发。
//
// Coordinator 不是并发安全的，不要在多个 goroutine 间共享。
type Coordinator struct {
	db        *gorm.DB
	publisher mq.Publisher

	tx     *gorm.DB
	staged []*model.OutboxMessage

	merchants   *repository.MerchantRepository
	payments    *repository.PaymentRepository
	withdrawals *repository.WithdrawalRepository
	balances    *repository.BalanceRepository
	ledger      *repository.LedgerRepository
	outbox      *repository.OutboxRepository
}

func New(db *gorm.DB, publisher mq.Publisher) *Coordinator {
	return &Coordinator{db: db, publisher: publisher}
}

func (c *Coordinator) Begin(ctx context.Context) error {
	if c.tx != nil {
		return ErrTxActive
	}

	tx := c.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("开启事务失败: %w", tx.Error)
	}

	c.tx = tx
	c.staged = nil
	c.merchants = repository.NewMerchantRepository(tx)
	c.payments = repository.NewPaymentRepository(tx)
	c.withdrawals = repository.NewWithdrawalRepository(tx)
	c.balances = repository.NewBalanceRepository(tx)
	c.ledger = repository.NewLedgerRepository(tx)
	c.outbox = repository.NewOutboxRepository(tx)
	return nil
}

// Active 是否有进行中的事务
func (c *Coordinator) Active() bool {
	return c.tx != nil
}

func (c *Coordinator) mustActive() {
	if c.tx == nil {
		panic("workflow: 事务未开启")
	}
}

func (c *Coordinator) Merchants() *repository.MerchantRepository {
	c.mustActive()
	return c.merchants
}

func (c *Coordinator) Payments() *repository.PaymentRepository {
	c.mustActive()
	return c.payments
}

func (c *Coordinator) Withdrawals() *repository.WithdrawalRepository {
	c.mustActive()
	return c.withdrawals
}

func (c *Coordinator) Balances() *repository.BalanceRepository {
	c.mustActive()
	return c.balances
}

func (c *Coordinator) Ledger() *repository.LedgerRepository {
	c.mustActive()
	return c.ledger
}

// Stage 登记一条提交后发布的事件
func (c *Coordinator) Stage(ctx context.Context, topic string, evt event.Event) error {
	if c.tx == nil {
		return ErrNoTx
	}

	msg, err := mq.EncodeEvent(topic, evt)
	if err != nil {
		return err
	}

	row := &model.OutboxMessage{
		EventID:    evt.EventID(),
		EventType:  evt.EventType(),
		Topic:      topic,
		Payload:    string(msg.Value),
		Status:     model.OutboxStatusPending,
		OccurredAt: evt.OccurredAt(),
	}
	if err := c.outbox.Create(ctx, row); err != nil {
		return fmt.Errorf("写入 outbox 失败: %w", err)
	}

	c.staged = append(c.staged, row)
	return nil
}

// Commit 提交事务，成功后按登记顺序发布事件
//
// 返回 mq.ErrPublish 时事务已经提交，数据不会回退
func (c *Coordinator) Commit(ctx context.Context) error {
	if c.tx == nil {
		return ErrNoTx
	}

	tx, staged := c.tx, c.staged
	c.reset()

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("提交事务失败: %w", err)
	}

	return c.publishStaged(ctx, staged)
}

// Rollback 没有进行中的事务时什么也不做
func (c *Coordinator) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.reset()
	if err := tx.WithContext(context.WithoutCancel(ctx)).Rollback().Error; err != nil {
		log.Printf("[Workflow] 回滚失败: %v", err)
		return err
	}
	return nil
}

func (c *Coordinator) reset() {
	c.tx = nil
	c.staged = nil
	c.merchants = nil
	c.payments = nil
	c.withdrawals = nil
	c.balances = nil
	c.ledger = nil
	c.outbox = nil
}

func (c *Coordinator) publishStaged(ctx context.Context, staged []*model.OutboxMessage) error {
	if len(staged) == 0 {
		return nil
	}

	outbox := repository.NewOutboxRepository(c.db)
	var firstErr error

	for _, row := range staged {
		if err := c.publisher.Send(ctx, OutboxMessageToMessage(row)); err != nil {
			log.Printf("[Workflow] 事件投递失败，等待 outbox 重发: event=%s, type=%s, err=%v", row.EventID, row.EventType, err)
			if incErr := outbox.IncrementRetryCount(context.WithoutCancel(ctx), row.ID); incErr != nil {
				log.Printf("[Workflow] 增加重试次数失败: id=%d, err=%v", row.ID, incErr)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if err := outbox.MarkSent(context.WithoutCancel(ctx), row.ID); err != nil {
			log.Printf("[Workflow] 更新 outbox 状态失败: id=%d, err=%v", row.ID, err)
		}
	}

	if firstErr != nil && !errors.Is(firstErr, mq.ErrPublish) {
		firstErr = fmt.Errorf("%w: %v", mq.ErrPublish, firstErr)
	}
	return firstErr
}

// OutboxMessageToMessage outbox 行还原为 Kafka 消息
func OutboxMessageToMessage(row *model.OutboxMessage) *mq.Message {
	return &mq.Message{
		Topic: row.Topic,
		Key:   row.EventID,
		Value: []byte(row.Payload),
		Headers: map[string]string{
			mq.HeaderEventType:  row.EventType,
			mq.HeaderOccurredAt: row.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// Run begin -> fn -> commit，fn 返回错误时回滚
func Run(ctx context.Context, db *gorm.DB, publisher mq.Publisher, fn func(c *Coordinator) error) error {
	c := New(db, publisher)
	if err := c.Begin(ctx); err != nil {
		return err
	}

	if err := runSafely(ctx, c, fn); err != nil {
		c.Rollback(ctx)
		return err
	}

	return c.Commit(ctx)
}

func runSafely(ctx context.Context, c *Coordinator, fn func(c *Coordinator) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.Rollback(ctx)
			panic(r)
		}
	}()
	return fn(c)
}
