package fraud

import (
	"context"
	"fmt"

	"merchantpay/internal/event"
)

// CompletedCounter 商户已完成支付笔数
type CompletedCounter interface {
	CountCompleted(ctx context.Context, merchantID string) (int64, error)
}

// Rule 风控规则，命中即拦截
type Rule interface {
	Name() string
	Check(ctx context.Context, evt *event.PaymentCreated) (hit bool, reason string, err error)
}

// Assessment 风险评估结果
type Assessment struct {
	Approved bool
	Rule     string // 命中的规则，通过时为空
	Reason   string
}

// Assess 按顺序执行规则，第一条命中的规则决定结果
func Assess(ctx context.Context, rules []Rule, evt *event.PaymentCreated) (Assessment, error) {
	for _, rule := range rules {
		hit, reason, err := rule.Check(ctx, evt)
		if err != nil {
			return Assessment{}, fmt.Errorf("规则 %s 执行失败: %w", rule.Name(), err)
		}
		if hit {
			return Assessment{Approved: false, Rule: rule.Name(), Reason: reason}, nil
		}
	}
	return Assessment{Approved: true, Reason: fmt.Sprintf("低风险: 金额 %d %s", evt.Amount, evt.Currency)}, nil
}

// HighValueRule 金额达到阈值需要人工审核
type HighValueRule struct {
	Threshold int64
}

func (r *HighValueRule) Name() string { return "high_value" }

func (r *HighValueRule) Check(_ context.Context, evt *event.PaymentCreated) (bool, string, error) {
	if evt.Amount >= r.Threshold {
		return true, fmt.Sprintf("大额交易 (>= %d)", r.Threshold), nil
	}
	return false, "", nil
}

// NewMerchantRule 历史成功支付不足的商户需要人工审核
type NewMerchantRule struct {
	MinCompleted int64
	Counter      CompletedCounter
}

func (r *NewMerchantRule) Name() string { return "new_merchant" }

func (r *NewMerchantRule) Check(ctx context.Context, evt *event.PaymentCreated) (bool, string, error) {
	if r.MinCompleted <= 0 {
		return false, "", nil
	}
	count, err := r.Counter.CountCompleted(ctx, evt.MerchantID)
	if err != nil {
		return false, "", err
	}
	if count < r.MinCompleted {
		return true, fmt.Sprintf("新商户 (仅 %d 笔已完成支付)", count), nil
	}
	return false, "", nil
}

// DefaultRules 大额优先，其次新商户
func DefaultRules(highValueThreshold, minCompleted int64, counter CompletedCounter) []Rule {
	return []Rule{
		&HighValueRule{Threshold: highValueThreshold},
		&NewMerchantRule{MinCompleted: minCompleted, Counter: counter},
	}
}
