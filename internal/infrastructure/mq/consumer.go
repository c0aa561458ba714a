package mq

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
)

// Handler 处理一条消息，返回 nil 才会提交 offset
type Handler func(ctx context.Context, msg *Message) error

// ConsumerGroup sarama.ConsumerGroup 中用到的部分
type ConsumerGroup interface {
	Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error
	// Errors 会话内的错误（拉取、提交 offset 等），Consumer.Return.Errors 开启时必须消费
	Errors() <-chan error
	Close() error
}

// 遇到这些错误说明配置或权限有问题，重试没有意义
var fatalConsumeErrors = []error{
	sarama.ErrClosedConsumerGroup,
	sarama.ErrSASLAuthenticationFailed,
	sarama.ErrTopicAuthorizationFailed,
	sarama.ErrGroupAuthorizationFailed,
	sarama.ErrClusterAuthorizationFailed,
}

func isFatal(err error) bool {
	for _, target := range fatalConsumeErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Consumer 消费循环
//
// 每条消息处理成功后立即标记并同步提交 offset；处理失败则结束本次会话，
// 未提交的消息在下一轮 Consume 时重新投递。
type Consumer struct {
	group        ConsumerGroup
	groupID      string
	topics       []string
	errorBackoff time.Duration
}

func NewConsumer(group ConsumerGroup, groupID string, topics []string, errorBackoff time.Duration) *Consumer {
	return &Consumer{
		group:        group,
		groupID:      groupID,
		topics:       topics,
		errorBackoff: errorBackoff,
	}
}

// Run 阻塞直到 ctx 取消或遇到致命错误
//
// 会话内上报的错误同样分类：非致命的记录日志，致命的结束消费循环并返回该错误
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	log.Printf("[Consumer] 消费任务启动: group=%s, topics=%v", c.groupID, c.topics)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fatal := make(chan error, 1)
	go c.watchErrors(runCtx, cancel, fatal)

	stop := func() error {
		select {
		case err := <-fatal:
			log.Printf("[Consumer] [ERROR] 致命错误，停止消费: group=%s, err=%v", c.groupID, err)
			return err
		default:
		}
		log.Printf("[Consumer] 收到停止信号，任务退出: group=%s", c.groupID)
		return nil
	}

	for {
		if runCtx.Err() != nil {
			return stop()
		}

		gh := &groupHandler{groupID: c.groupID, handler: handler}
		err := c.group.Consume(runCtx, c.topics, gh)

		if runCtx.Err() != nil {
			return stop()
		}

		if err != nil {
			if isFatal(err) {
				log.Printf("[Consumer] [ERROR] 致命错误，停止消费: group=%s, err=%v", c.groupID, err)
				return err
			}
			log.Printf("[Consumer] 消费出错，%s 后重试: group=%s, err=%v", c.errorBackoff, c.groupID, err)
		} else if !gh.failed.Load() {
			// 正常 rebalance，直接进入下一轮
			continue
		}

		if !sleepContext(runCtx, c.errorBackoff) {
			return stop()
		}
	}
}

// watchErrors 消费会话错误通道，遇到致命错误时取消 Run
func (c *Consumer) watchErrors(ctx context.Context, cancel context.CancelFunc, fatal chan<- error) {
	errs := c.group.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			if isFatal(err) {
				select {
				case fatal <- err:
				default:
				}
				cancel()
				return
			}
			log.Printf("[Consumer] 会话内错误: group=%s, err=%v", c.groupID, err)
		}
	}
}

// Close 关闭消费组
func (c *Consumer) Close() error {
	return c.group.Close()
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// groupHandler 实现 sarama.ConsumerGroupHandler
type groupHandler struct {
	groupID string
	handler Handler
	failed  atomic.Bool
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	return h.consumeMessages(sess.Context(), claim.Messages(), func(m *sarama.ConsumerMessage) {
		sess.MarkMessage(m, "")
		sess.Commit()
	})
}

// consumeMessages 逐条处理，commit 只在处理成功后调用
func (h *groupHandler) consumeMessages(ctx context.Context, messages <-chan *sarama.ConsumerMessage, commit func(*sarama.ConsumerMessage)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-messages:
			if !ok {
				return nil
			}
			msg := fromConsumerMessage(m)
			if err := h.handler(ctx, msg); err != nil {
				h.failed.Store(true)
				log.Printf("[Consumer] 消息处理失败，不提交 offset: group=%s, topic=%s, partition=%d, offset=%d, err=%v",
					h.groupID, m.Topic, m.Partition, m.Offset, err)
				return err
			}
			commit(m)
		}
	}
}
