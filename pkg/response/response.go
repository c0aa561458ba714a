package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeNotFound      = 404
	CodeConflict      = 409
	CodeUnprocessable = 422
	CodeServerError   = 500
	CodeBadGateway    = 502
	CodeBusinessError = 1000
)

// 业务错误码，HTTP 状态码之外的细分
const (
	CodeStatusInvalid          = 1002
	CodeBalanceNotEnough       = 1003
	CodeDuplicateRequest       = 1004
	CodeMerchantInactive       = 1005
	CodeConcurrentModification = 1006
	CodeMerchantExists         = 1007
	CodeIdempotencyKeyReused   = 1008
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error httpStatus 为 HTTP 状态码，code 为响应体里的业务码
func Error(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeNotFound, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeServerError, message)
}

// BusinessError 状态冲突类错误，HTTP 409
func BusinessError(c *gin.Context, code int, message string) {
	Error(c, http.StatusConflict, code, message)
}
