package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 本地消息表
//
// 领域事件和业务数据在同一个事务里写入，事务提交后再投递到 Kafka。
// 提交后立即投递失败的消息由 OutboxRelay 兜底重发。
type OutboxMessage struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID    string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"event_id"` // 同时作为 Kafka key
	EventType  string     `gorm:"type:varchar(64);not null" json:"event_type"`
	Topic      string     `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string     `gorm:"type:text;not null" json:"payload"`
	Status     string     `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int        `gorm:"not null;default:0" json:"retry_count"`
	OccurredAt time.Time  `gorm:"not null" json:"occurred_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
