package fraud

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"merchantpay/internal/event"
	"merchantpay/internal/infrastructure/mq"
	"merchantpay/internal/model"
	"merchantpay/internal/repository"
)

// PaymentReviewer 风控需要的支付能力，由 service.PaymentService 实现
type PaymentReviewer interface {
	CompletedCounter
	GetPayment(ctx context.Context, paymentID string) (*model.Payment, error)
	CompletePayment(ctx context.Context, paymentID, completedBy string) (*model.Payment, error)
}

// DeadLetterSink 死信投递
type DeadLetterSink interface {
	PublishDeadLetter(ctx context.Context, rec *event.FailedEventRecord) error
}

type Config struct {
	PaymentTopic  string // PaymentFlagged 发往的 topic
	ConsumerGroup string
	MaxRetries    int
	BaseDelay     time.Duration
}

type retryState struct {
	failures      int
	firstFailedAt time.Time
	lastFailedAt  time.Time
	lastErr       error
}

// Pipeline 消费 PaymentCreated，自动通过或标记人工审核
//
// 重试计数按 topic/partition/offset 保存在实例内，进程重启后清零。
type Pipeline struct {
	cfg       Config
	rules     []Rule
	reviewer  PaymentReviewer
	publisher mq.Publisher
	dlq       DeadLetterSink

	mu      sync.Mutex
	retries map[string]*retryState
}

func NewPipeline(cfg Config, reviewer PaymentReviewer, publisher mq.Publisher, dlq DeadLetterSink, rules []Rule) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		rules:     rules,
		reviewer:  reviewer,
		publisher: publisher,
		dlq:       dlq,
		retries:   make(map[string]*retryState),
	}
}

func messageKey(msg *mq.Message) string {
	return fmt.Sprintf("%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
}

// Handle 实现 mq.Handler
//
// 返回 nil 表示消息已处理完（包括进入死信队列），可以提交 offset
func (p *Pipeline) Handle(ctx context.Context, msg *mq.Message) error {
	start := time.Now()
	defer func() { processingDuration.Observe(time.Since(start).Seconds()) }()

	eventType := msg.Header(mq.HeaderEventType)
	if eventType == "" {
		return p.deadLetter(ctx, msg, eventType, Permanent(ReasonMissingEventType, errors.New("缺少 event-type 消息头")), 0)
	}
	if eventType != event.TypePaymentCreated {
		// 同一个 topic 上还有 PaymentCompleted、PaymentFlagged 等事件
		return nil
	}

	evt, err := event.DecodePaymentCreated(msg.Value)
	if err != nil {
		return p.deadLetter(ctx, msg, eventType, Permanent(ReasonDeserialization, err), 0)
	}

	key := messageKey(msg)
	for {
		if st, ok := p.state(key); ok && st.failures > p.cfg.MaxRetries {
			// 上次重试耗尽后死信投递失败，本次直接重投死信
			return p.deadLetter(ctx, msg, eventType, st.lastErr, p.cfg.MaxRetries)
		}

		err := p.review(ctx, evt)
		if err == nil {
			p.clear(key)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if IsPermanent(err) {
			return p.deadLetter(ctx, msg, eventType, err, 0)
		}

		st := p.recordFailure(key, err)
		if st.failures > p.cfg.MaxRetries {
			log.Printf("[Fraud] [ERROR] 重试 %d 次仍失败，进入死信队列: payment=%s, err=%v", p.cfg.MaxRetries, evt.PaymentID, err)
			return p.deadLetter(ctx, msg, eventType, err, p.cfg.MaxRetries)
		}

		delay := p.cfg.BaseDelay * time.Duration(1<<st.failures)
		log.Printf("[Fraud] 处理失败 (%d/%d)，%s 后重试: payment=%s, err=%v",
			st.failures, p.cfg.MaxRetries, delay, evt.PaymentID, err)
		paymentsProcessed.WithLabelValues("retrying").Inc()
		retryAttempts.Inc()

		if err := wait(ctx, delay); err != nil {
			return err
		}
	}
}

// review 对一笔支付做风险评估并执行结果
func (p *Pipeline) review(ctx context.Context, evt *event.PaymentCreated) error {
	payment, err := p.reviewer.GetPayment(ctx, evt.PaymentID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return Permanent(ReasonPaymentNotFound, err)
		}
		return fmt.Errorf("查询支付单失败: %w", err)
	}

	// 重复投递
	if payment.Status != model.PaymentStatusPending {
		log.Printf("[Fraud] 支付单已处理，跳过: payment=%s, status=%s", payment.ID, payment.Status)
		paymentsProcessed.WithLabelValues("skipped").Inc()
		return nil
	}

	assessment, err := Assess(ctx, p.rules, evt)
	if err != nil {
		return err
	}

	if !assessment.Approved {
		flagged := event.NewPaymentFlagged(evt, assessment.Reason)
		if err := p.publisher.Publish(ctx, p.cfg.PaymentTopic, flagged); err != nil {
			return fmt.Errorf("发布 PaymentFlagged 失败: %w", err)
		}
		log.Printf("[Fraud] 支付需人工审核: payment=%s, reason=%s", evt.PaymentID, assessment.Reason)
		paymentsFlagged.WithLabelValues(assessment.Rule).Inc()
		paymentsProcessed.WithLabelValues("flagged").Inc()
		return nil
	}

	_, err = p.reviewer.CompletePayment(ctx, evt.PaymentID, model.CompletedByFraudReview)
	switch {
	case err == nil, errors.Is(err, mq.ErrPublish):
		// 已提交，事件由 outbox 补发
	case errors.Is(err, model.ErrInvalidTransition):
		log.Printf("[Fraud] 支付单状态已变化，跳过: payment=%s", evt.PaymentID)
		paymentsProcessed.WithLabelValues("skipped").Inc()
		return nil
	default:
		return fmt.Errorf("自动完成支付失败: %w", err)
	}

	log.Printf("[Fraud] 支付自动通过: payment=%s, %s", evt.PaymentID, assessment.Reason)
	paymentsApproved.Inc()
	paymentsProcessed.WithLabelValues("approved").Inc()
	return nil
}

func (p *Pipeline) deadLetter(ctx context.Context, msg *mq.Message, eventType string, cause error, retryCount int) error {
	key := messageKey(msg)
	now := time.Now().UTC()

	reason := ReasonMaxRetriesExceeded
	var pe *PermanentError
	if errors.As(cause, &pe) {
		reason = pe.Reason
	}

	rec := &event.FailedEventRecord{
		OriginalTopic:     msg.Topic,
		EventType:         eventType,
		EventPayload:      string(msg.Value),
		FailureReason:     reason,
		RetryCount:        retryCount,
		FirstFailedAt:     now,
		LastFailedAt:      now,
		ConsumerGroup:     p.cfg.ConsumerGroup,
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
	}
	if cause != nil {
		rec.ExceptionDetails = cause.Error()
	}
	if st, ok := p.state(key); ok {
		rec.FirstFailedAt = st.firstFailedAt
		rec.LastFailedAt = st.lastFailedAt
	}

	if err := p.dlq.PublishDeadLetter(ctx, rec); err != nil {
		return fmt.Errorf("死信投递失败: %w", err)
	}

	p.clear(key)
	dlqMessages.WithLabelValues(reason).Inc()
	paymentsProcessed.WithLabelValues("dead_lettered").Inc()
	return nil
}

func (p *Pipeline) state(key string) (retryState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.retries[key]
	if !ok {
		return retryState{}, false
	}
	return *st, true
}

func (p *Pipeline) recordFailure(key string, err error) retryState {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	st, ok := p.retries[key]
	if !ok {
		st = &retryState{firstFailedAt: now}
		p.retries[key] = st
	}
	st.failures++
	st.lastFailedAt = now
	st.lastErr = err
	retryingMessages.Set(float64(len(p.retries)))
	return *st
}

func (p *Pipeline) clear(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.retries, key)
	retryingMessages.Set(float64(len(p.retries)))
}

// Pending 正在重试中的消息数
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.retries)
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
