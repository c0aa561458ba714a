package job

import (
	"context"
	"log"
	"time"

	"merchantpay/internal/config"
	"merchantpay/internal/infrastructure/mq"
	"merchantpay/internal/model"
	"merchantpay/internal/repository"
	"merchantpay/internal/workflow"

	"gorm.io/gorm"
)

// OutboxRelay 补发提交后没能立即发出的事件
//
// 只处理创建时间早于 gracePeriod 的消息，避免和事务提交后的即时发布抢同一条。
// 重复投递由消费方幂等处理。
type OutboxRelay struct {
	outboxRepo    *repository.OutboxRepository
	publisher     mq.Publisher
	stopCh        chan struct{}
	interval      time.Duration
	gracePeriod   time.Duration
	batchSize     int
	maxRetryCount int
}

func NewOutboxRelay(db *gorm.DB, publisher mq.Publisher, cfg config.BusinessConfig) *OutboxRelay {
	return &OutboxRelay{
		outboxRepo:    repository.NewOutboxRepository(db),
		publisher:     publisher,
		stopCh:        make(chan struct{}),
		interval:      cfg.OutboxInterval,
		gracePeriod:   cfg.OutboxGracePeriod,
		batchSize:     cfg.OutboxBatchSize,
		maxRetryCount: cfg.MaxRetryCount,
	}
}

func (r *OutboxRelay) Start(ctx context.Context) {
	log.Println("[OutboxRelay] 消息补发任务启动")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxRelay] 收到停止信号，任务退出")
			return
		case <-r.stopCh:
			log.Println("[OutboxRelay] 任务停止")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

func (r *OutboxRelay) Stop() {
	close(r.stopCh)
}

// RunOnce 补发一批，返回发送成功的条数
func (r *OutboxRelay) RunOnce(ctx context.Context) int {
	messages, err := r.outboxRepo.GetPendingMessages(ctx, time.Now().Add(-r.gracePeriod), r.batchSize)
	if err != nil {
		log.Printf("[OutboxRelay] 查询消息失败: %v", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		if r.sendMessage(ctx, msg) {
			sent++
		}
	}
	if sent > 0 {
		log.Printf("[OutboxRelay] 本次补发 %d/%d 条消息", sent, len(messages))
	}
	return sent
}

func (r *OutboxRelay) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := r.publisher.Send(ctx, workflow.OutboxMessageToMessage(msg))
	if err == nil {
		if updateErr := r.outboxRepo.MarkSent(ctx, msg.ID); updateErr != nil {
			log.Printf("[OutboxRelay] 更新消息状态失败: id=%d, err=%v", msg.ID, updateErr)
		}
		return true
	}

	log.Printf("[OutboxRelay] 消息发送失败: id=%d, event=%s, err=%v", msg.ID, msg.EventID, err)

	if err := r.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		log.Printf("[OutboxRelay] 增加重试次数失败: id=%d, err=%v", msg.ID, err)
	}

	if msg.RetryCount+1 >= r.maxRetryCount {
		if err := r.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			log.Printf("[OutboxRelay] 标记消息失败状态失败: id=%d, err=%v", msg.ID, err)
		} else {
			log.Printf("[OutboxRelay] [ERROR] 消息超过最大重试次数，标记为失败: id=%d, event=%s", msg.ID, msg.EventID)
		}
	}
	return false
}
