package job

import (
	"context"
	"log"
	"time"

	"merchantpay/internal/service"
)

// BalanceReconciler 定期对账，只报告不修正
type BalanceReconciler struct {
	ledgerService *service.LedgerService
	stopCh        chan struct{}
	interval      time.Duration
}

func NewBalanceReconciler(ledgerService *service.LedgerService, interval time.Duration) *BalanceReconciler {
	return &BalanceReconciler{
		ledgerService: ledgerService,
		stopCh:        make(chan struct{}),
		interval:      interval,
	}
}

func (j *BalanceReconciler) Start(ctx context.Context) {
	log.Println("[BalanceReconciler] 对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[BalanceReconciler] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[BalanceReconciler] 任务停止")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *BalanceReconciler) Stop() {
	close(j.stopCh)
}

// RunOnce 返回不一致的余额行数
func (j *BalanceReconciler) RunOnce(ctx context.Context) int {
	results, err := j.ledgerService.VerifyAll(ctx)
	if err != nil {
		log.Printf("[BalanceReconciler] 对账失败: %v", err)
		return 0
	}

	mismatches := 0
	for _, r := range results {
		if !r.IsValid {
			mismatches++
		}
	}

	if mismatches > 0 {
		log.Printf("[BalanceReconciler] [ERROR] 本次对账 %d 个余额，%d 个不一致", len(results), mismatches)
	}
	return mismatches
}
