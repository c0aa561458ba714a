package handler

import (
	"errors"
	"log"
	"net/http"

	"merchantpay/internal/idempotency"
	"merchantpay/internal/infrastructure/mq"
	"merchantpay/internal/model"
	"merchantpay/internal/repository"
	"merchantpay/pkg/response"

	"github.com/gin-gonic/gin"
)

var notFoundErrors = []error{
	repository.ErrMerchantNotFound,
	repository.ErrPaymentNotFound,
	repository.ErrWithdrawalNotFound,
	repository.ErrBalanceNotFound,
}

// writeError 按错误类型映射 HTTP 状态码
//
//	校验失败 400，状态冲突 409，不存在 404，消息发布失败 502，其余 500
func writeError(c *gin.Context, err error) {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			response.NotFound(c, err.Error())
			return
		}
	}

	switch {
	case model.IsValidationError(err):
		response.ParamError(c, err.Error())
	case errors.Is(err, model.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, model.ErrInvalidTransition):
		response.BusinessError(c, response.CodeStatusInvalid, err.Error())
	case errors.Is(err, model.ErrMerchantInactive):
		response.BusinessError(c, response.CodeMerchantInactive, err.Error())
	case errors.Is(err, repository.ErrConcurrentModification):
		response.BusinessError(c, response.CodeConcurrentModification, err.Error())
	case errors.Is(err, repository.ErrMerchantExists):
		response.BusinessError(c, response.CodeMerchantExists, err.Error())
	case errors.Is(err, idempotency.ErrInFlight):
		response.BusinessError(c, response.CodeDuplicateRequest, err.Error())
	case errors.Is(err, idempotency.ErrFingerprintMismatch):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeIdempotencyKeyReused, err.Error())
	case errors.Is(err, mq.ErrPublish):
		response.Error(c, http.StatusBadGateway, response.CodeBadGateway, err.Error())
	default:
		log.Printf("[HTTP] [ERROR] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		response.ServerError(c, "服务器内部错误")
	}
}

// committedOrFail 处理写操作的错误
//
// 服务层只在数据已提交、事件未发出时返回 mq.ErrPublish，这种情况按成功返回，
// 事件由 outbox 补发。返回 false 表示已经写了错误响应。
func committedOrFail(c *gin.Context, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, mq.ErrPublish) {
		log.Printf("[HTTP] 事件发布失败，等待 outbox 重发: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		return true
	}
	writeError(c, err)
	return false
}
