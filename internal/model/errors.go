package model

import (
	"errors"
	"net/mail"
	"strings"
)

// ============================================================================
// 领域错误
// ============================================================================
//
// 分两类：
//   - 参数校验错误：金额、币种等输入不合法，直接返回调用方，不重试
//   - 状态冲突错误：余额不足、非法状态流转，调用方可以决定是否重试
//
// 调用方统一使用 errors.Is 判断，错误信息里可以带上具体数值（%w 包装）

var (
	ErrInvalidAmount   = errors.New("金额必须大于0")
	ErrInvalidCurrency = errors.New("币种必须是3位字母代码")
	ErrInvalidArgument = errors.New("参数不合法")

	ErrInsufficientBalance = errors.New("余额不足")
	ErrInvalidTransition   = errors.New("状态流转不合法")
	ErrMerchantInactive    = errors.New("商户已停用")
)

// IsValidationError 判断是否为参数校验类错误
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidCurrency) ||
		errors.Is(err, ErrInvalidArgument)
}

// IsStateConflict 判断是否为状态冲突类错误
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrMerchantInactive)
}

// NormalizeCurrency 币种统一转大写，长度必须为3且全部是字母
func NormalizeCurrency(currency string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if len(c) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return c, nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}
