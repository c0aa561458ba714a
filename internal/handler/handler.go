package handler

import (
	"strconv"

	"merchantpay/internal/model"
	"merchantpay/internal/repository"
	"merchantpay/internal/service"
	"merchantpay/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	merchantService   *service.MerchantService
	paymentService    *service.PaymentService
	withdrawalService *service.WithdrawalService
	ledgerService     *service.LedgerService
}

func NewHandler(
	merchants *service.MerchantService,
	payments *service.PaymentService,
	withdrawals *service.WithdrawalService,
	ledger *service.LedgerService,
) *Handler {
	return &Handler{
		merchantService:   merchants,
		paymentService:    payments,
		withdrawalService: withdrawals,
		ledgerService:     ledger,
	}
}

// pagination page 从1开始，page_size 上限 100
func pagination(c *gin.Context) (page, pageSize, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize, (page - 1) * pageSize
}

// ============================================================
// 商户相关接口
// ============================================================

// CreateMerchant POST /api/v1/merchants
func (h *Handler) CreateMerchant(c *gin.Context) {
	var req service.CreateMerchantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	merchant, err := h.merchantService.CreateMerchant(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, merchant)
}

// ListMerchants GET /api/v1/merchants
func (h *Handler) ListMerchants(c *gin.Context) {
	merchants, err := h.merchantService.ListActiveMerchants(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": merchants, "total": len(merchants)})
}

// GetMerchant GET /api/v1/merchants/:id
func (h *Handler) GetMerchant(c *gin.Context) {
	merchant, err := h.merchantService.GetMerchant(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, merchant)
}

// DeactivateMerchant POST /api/v1/merchants/:id/deactivate
func (h *Handler) DeactivateMerchant(c *gin.Context) {
	merchant, err := h.merchantService.DeactivateMerchant(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, merchant)
}

// ActivateMerchant POST /api/v1/merchants/:id/activate
func (h *Handler) ActivateMerchant(c *gin.Context) {
	merchant, err := h.merchantService.ActivateMerchant(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, merchant)
}

// GetBalances GET /api/v1/merchants/:id/balances
func (h *Handler) GetBalances(c *gin.Context) {
	balances, err := h.merchantService.GetBalances(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": balances})
}

// GetBalance GET /api/v1/merchants/:id/balances/:currency
func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.merchantService.GetBalance(c.Request.Context(), c.Param("id"), c.Param("currency"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"merchant_id":     balance.MerchantID,
		"currency":        balance.Currency,
		"available":       balance.Available,
		"pending":         balance.Pending,
		"total":           balance.Total(),
		"version":         balance.Version,
		"last_updated_at": balance.UpdatedAt,
	})
}

// ============================================================
// 支付相关接口
// ============================================================

// CreatePayment POST /api/v1/merchants/:id/payments
func (h *Handler) CreatePayment(c *gin.Context) {
	var req service.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	payment, err := h.paymentService.CreatePayment(c.Request.Context(), c.Param("id"), &req)
	if !committedOrFail(c, err) {
		return
	}
	response.Created(c, payment)
}

// CreateBulkPayments POST /api/v1/merchants/:id/payments/bulk
//
// 整批在一个事务里创建，任意一笔不合法则全部失败
func (h *Handler) CreateBulkPayments(c *gin.Context) {
	var req service.BulkCreatePaymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	payments, err := h.paymentService.CreateBulkPayments(c.Request.Context(), c.Param("id"), req.Payments)
	if !committedOrFail(c, err) {
		return
	}
	response.Created(c, gin.H{"list": payments, "total": len(payments)})
}

// ListPayments GET /api/v1/merchants/:id/payments?status=PENDING&page=1&page_size=20
func (h *Handler) ListPayments(c *gin.Context) {
	page, pageSize, offset := pagination(c)
	filter := repository.PaymentFilter{Status: c.Query("status"), Limit: pageSize, Offset: offset}

	payments, total, err := h.paymentService.ListPayments(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      payments,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetPayment GET /api/v1/payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	payment, err := h.paymentService.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, payment)
}

// CompletePayment POST /api/v1/payments/:id/complete
//
// 人工确认入账，风控自动通过走 worker
func (h *Handler) CompletePayment(c *gin.Context) {
	payment, err := h.paymentService.CompletePayment(c.Request.Context(), c.Param("id"), model.CompletedByManual)
	if !committedOrFail(c, err) {
		return
	}
	response.Success(c, payment)
}

// FailPayment POST /api/v1/payments/:id/fail
func (h *Handler) FailPayment(c *gin.Context) {
	payment, err := h.paymentService.FailPayment(c.Request.Context(), c.Param("id"))
	if !committedOrFail(c, err) {
		return
	}
	response.Success(c, payment)
}

// RefundPayment POST /api/v1/merchants/:id/payments/:paymentId/refund
//
// 不传金额为全额退款
func (h *Handler) RefundPayment(c *gin.Context) {
	var req service.RefundRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "参数错误: "+err.Error())
			return
		}
	}

	payment, err := h.paymentService.RefundPayment(c.Request.Context(), c.Param("id"), c.Param("paymentId"), &req)
	if !committedOrFail(c, err) {
		return
	}
	response.Success(c, payment)
}

// ============================================================
// 提现相关接口
// ============================================================

// CreateWithdrawal POST /api/v1/merchants/:id/withdrawals
func (h *Handler) CreateWithdrawal(c *gin.Context) {
	var req service.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	withdrawal, err := h.withdrawalService.CreateWithdrawal(c.Request.Context(), c.Param("id"), &req)
	if !committedOrFail(c, err) {
		return
	}
	response.Created(c, withdrawal)
}

// ListWithdrawals GET /api/v1/merchants/:id/withdrawals
func (h *Handler) ListWithdrawals(c *gin.Context) {
	page, pageSize, offset := pagination(c)
	withdrawals, err := h.withdrawalService.ListWithdrawals(c.Request.Context(), c.Param("id"), pageSize, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      withdrawals,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetWithdrawal GET /api/v1/merchants/:id/withdrawals/:wid
func (h *Handler) GetWithdrawal(c *gin.Context) {
	withdrawal, err := h.withdrawalService.GetWithdrawal(c.Request.Context(), c.Param("id"), c.Param("wid"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, withdrawal)
}

// ProcessWithdrawal POST /api/v1/merchants/:id/withdrawals/:wid/process
func (h *Handler) ProcessWithdrawal(c *gin.Context) {
	withdrawal, err := h.withdrawalService.ProcessWithdrawal(c.Request.Context(), c.Param("id"), c.Param("wid"))
	if !committedOrFail(c, err) {
		return
	}
	response.Success(c, withdrawal)
}

// CompleteWithdrawal POST /api/v1/merchants/:id/withdrawals/:wid/complete
func (h *Handler) CompleteWithdrawal(c *gin.Context) {
	withdrawal, err := h.withdrawalService.CompleteWithdrawal(c.Request.Context(), c.Param("id"), c.Param("wid"))
	if !committedOrFail(c, err) {
		return
	}
	response.Success(c, withdrawal)
}

// FailWithdrawal POST /api/v1/merchants/:id/withdrawals/:wid/fail
func (h *Handler) FailWithdrawal(c *gin.Context) {
	var req service.FailWithdrawalRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "参数错误: "+err.Error())
			return
		}
	}

	withdrawal, err := h.withdrawalService.FailWithdrawal(c.Request.Context(), c.Param("id"), c.Param("wid"), req.Reason)
	if !committedOrFail(c, err) {
		return
	}
	response.Success(c, withdrawal)
}

// CancelWithdrawal POST /api/v1/merchants/:id/withdrawals/:wid/cancel
func (h *Handler) CancelWithdrawal(c *gin.Context) {
	withdrawal, err := h.withdrawalService.CancelWithdrawal(c.Request.Context(), c.Param("id"), c.Param("wid"))
	if !committedOrFail(c, err) {
		return
	}
	response.Success(c, withdrawal)
}

// ============================================================
// 对账接口
// ============================================================

// VerifyBalance GET /api/v1/admin/verify-balance/:merchantId?currency=USD
func (h *Handler) VerifyBalance(c *gin.Context) {
	result, err := h.ledgerService.VerifyBalance(c.Request.Context(), c.Param("merchantId"), c.DefaultQuery("currency", "USD"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// VerifyAllBalances GET /api/v1/admin/verify-balances
func (h *Handler) VerifyAllBalances(c *gin.Context) {
	results, err := h.ledgerService.VerifyAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	mismatches := 0
	for _, r := range results {
		if !r.IsValid {
			mismatches++
		}
	}
	response.Success(c, gin.H{"list": results, "total": len(results), "mismatches": mismatches})
}

// LedgerHistory GET /api/v1/admin/ledger-history/:merchantId?currency=USD&page=1&page_size=20
func (h *Handler) LedgerHistory(c *gin.Context) {
	page, pageSize, offset := pagination(c)
	entries, total, err := h.ledgerService.History(c.Request.Context(), c.Param("merchantId"), c.Query("currency"), pageSize, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
