package service

import (
	"errors"

	"merchantpay/internal/infrastructure/mq"
)

// committed 判断事务是否已提交
//
// 返回 mq.ErrPublish 说明数据已落库、仅事件未发出（outbox 会补发），
// 调用方需要同时拿到实体和错误。
func committed(err error) bool {
	return err == nil || errors.Is(err, mq.ErrPublish)
}
