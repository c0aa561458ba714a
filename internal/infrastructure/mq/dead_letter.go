package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"merchantpay/internal/event"
)

// 死信消息头
const (
	HeaderOriginalTopic     = "original-topic"
	HeaderOriginalEventType = "original-event-type"
	HeaderFailureReason     = "failure-reason"
	HeaderRetryCount        = "retry-count"
	HeaderConsumerGroup     = "consumer-group"
	HeaderDLQTimestamp      = "dlq-timestamp"
)

// DeadLetter 死信消息体
type DeadLetter struct {
	event.FailedEventRecord
	SentToDLQAt time.Time `json:"sentToDlqAt"`
}

// DeadLetterPublisher 把处理失败的消息投递到死信 topic
type DeadLetterPublisher struct {
	publisher Publisher
	topic     string
}

func NewDeadLetterPublisher(publisher Publisher, topic string) *DeadLetterPublisher {
	return &DeadLetterPublisher{publisher: publisher, topic: topic}
}

// DeadLetterKey 原始位置 topic:partition:offset
func DeadLetterKey(rec *event.FailedEventRecord) string {
	return fmt.Sprintf("%s:%d:%d", rec.OriginalTopic, rec.OriginalPartition, rec.OriginalOffset)
}

// PublishDeadLetter 投递死信
//
// 返回错误时调用方不能提交原消息的 offset，否则消息就丢了
func (d *DeadLetterPublisher) PublishDeadLetter(ctx context.Context, rec *event.FailedEventRecord) error {
	now := time.Now().UTC()
	body, err := json.MarshalIndent(DeadLetter{FailedEventRecord: *rec, SentToDLQAt: now}, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化死信失败: %w", err)
	}

	msg := &Message{
		Topic: d.topic,
		Key:   DeadLetterKey(rec),
		Value: body,
		Headers: map[string]string{
			HeaderOriginalTopic:     rec.OriginalTopic,
			HeaderOriginalEventType: rec.EventType,
			HeaderFailureReason:     rec.FailureReason,
			HeaderRetryCount:        strconv.Itoa(rec.RetryCount),
			HeaderConsumerGroup:     rec.ConsumerGroup,
			HeaderDLQTimestamp:      now.Format(time.RFC3339Nano),
		},
	}

	if err := d.publisher.Send(ctx, msg); err != nil {
		log.Printf("[DLQ] [ERROR] 死信投递失败，原消息不提交: key=%s, err=%v", msg.Key, err)
		return err
	}

	log.Printf("[DLQ] 消息进入死信队列: topic=%s, type=%s, reason=%s, retry=%d",
		rec.OriginalTopic, rec.EventType, rec.FailureReason, rec.RetryCount)
	return nil
}

// DecodeDeadLetter 解析死信消息体
func DecodeDeadLetter(value []byte) (*DeadLetter, error) {
	var dl DeadLetter
	if err := json.Unmarshal(value, &dl); err != nil {
		return nil, fmt.Errorf("解析死信失败: %w", err)
	}
	if dl.OriginalTopic == "" {
		return nil, fmt.Errorf("解析死信失败: 缺少 originalTopic")
	}
	return &dl, nil
}

// ReplayMessage 还原为原始消息，用于人工重放
//
// key 优先取原始 payload 中的 eventId，取不到时沿用死信 key
func (dl *DeadLetter) ReplayMessage() *Message {
	key := DeadLetterKey(&dl.FailedEventRecord)
	var meta event.Meta
	if err := json.Unmarshal([]byte(dl.EventPayload), &meta); err == nil && meta.ID != "" {
		key = meta.ID
	}

	headers := map[string]string{}
	if dl.EventType != "" {
		headers[HeaderEventType] = dl.EventType
	}
	return &Message{
		Topic:   dl.OriginalTopic,
		Key:     key,
		Value:   []byte(dl.EventPayload),
		Headers: headers,
	}
}
