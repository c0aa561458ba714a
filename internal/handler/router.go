package handler

import (
	"net/http"

	"merchantpay/internal/idempotency"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, store idempotency.Store, mode string) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(MetricsMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	api.Use(IdempotencyMiddleware(store))
	{
		merchants := api.Group("/merchants")
		{
			merchants.POST("", h.CreateMerchant)
			merchants.GET("", h.ListMerchants)
			merchants.GET("/:id", h.GetMerchant)
			merchants.POST("/:id/deactivate", h.DeactivateMerchant)
			merchants.POST("/:id/activate", h.ActivateMerchant)
			merchants.GET("/:id/balances", h.GetBalances)
			merchants.GET("/:id/balances/:currency", h.GetBalance)

			merchants.POST("/:id/payments", h.CreatePayment)
			merchants.POST("/:id/payments/bulk", h.CreateBulkPayments)
			merchants.GET("/:id/payments", h.ListPayments)
			merchants.POST("/:id/payments/:paymentId/refund", h.RefundPayment)

			merchants.POST("/:id/withdrawals", h.CreateWithdrawal)
			merchants.GET("/:id/withdrawals", h.ListWithdrawals)
			merchants.GET("/:id/withdrawals/:wid", h.GetWithdrawal)
			merchants.POST("/:id/withdrawals/:wid/process", h.ProcessWithdrawal)
			merchants.POST("/:id/withdrawals/:wid/complete", h.CompleteWithdrawal)
			merchants.POST("/:id/withdrawals/:wid/fail", h.FailWithdrawal)
			merchants.POST("/:id/withdrawals/:wid/cancel", h.CancelWithdrawal)
		}

		payments := api.Group("/payments")
		{
			payments.GET("/:id", h.GetPayment)
			payments.POST("/:id/complete", h.CompletePayment)
			payments.POST("/:id/fail", h.FailPayment)
		}

		admin := api.Group("/admin")
		{
			admin.GET("/verify-balance/:merchantId", h.VerifyBalance)
			admin.GET("/verify-balances", h.VerifyAllBalances)
			admin.GET("/ledger-history/:merchantId", h.LedgerHistory)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
