package job

import (
	"context"
	"log"

	"merchantpay/internal/event"
	"merchantpay/internal/infrastructure/mq"
)

// WithdrawalEventLogger 记录提现事件，供审计和排查
//
// 无法解析的消息只记日志，不阻塞消费
func WithdrawalEventLogger(_ context.Context, msg *mq.Message) error {
	eventType := msg.Header(mq.HeaderEventType)
	evt, err := event.Decode(eventType, msg.Value)
	if err != nil {
		log.Printf("[WithdrawalLogger] 无法解析的消息: partition=%d, offset=%d, type=%q, err=%v",
			msg.Partition, msg.Offset, eventType, err)
		return nil
	}

	switch e := evt.(type) {
	case *event.WithdrawalRequested:
		log.Printf("[WithdrawalLogger] 提现申请: id=%s, merchant=%s, amount=%d %s",
			e.WithdrawalID, e.MerchantID, e.Amount, e.Currency)
	case *event.WithdrawalCancelled:
		log.Printf("[WithdrawalLogger] 提现撤销: id=%s, merchant=%s, amount=%d %s",
			e.WithdrawalID, e.MerchantID, e.Amount, e.Currency)
	default:
		log.Printf("[WithdrawalLogger] 忽略事件: type=%s, id=%s", evt.EventType(), evt.EventID())
	}
	return nil
}
