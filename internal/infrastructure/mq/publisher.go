package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"merchantpay/internal/event"

	"github.com/IBM/sarama"
)

// ErrPublish 投递失败，调用方据此区分"业务已提交但事件未发出"
var ErrPublish = errors.New("消息投递失败")

// Publisher 事件发布
type Publisher interface {
	// Publish 序列化领域事件并发送，key 为事件ID
	Publish(ctx context.Context, topic string, evt event.Event) error
	// Send 发送已经编码好的消息（outbox 重发、死信、重放）
	Send(ctx context.Context, msg *Message) error
}

// EncodeEvent 领域事件 -> Kafka 消息
func EncodeEvent(topic string, evt event.Event) (*Message, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("序列化事件失败: %w", err)
	}
	return &Message{
		Topic: topic,
		Key:   evt.EventID(),
		Value: payload,
		Headers: map[string]string{
			HeaderEventType:  evt.EventType(),
			HeaderOccurredAt: evt.OccurredAt().UTC().Format(time.RFC3339Nano),
		},
	}, nil
}

// KafkaPublisher 基于 SyncProducer 的发布者
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewKafkaPublisher(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, evt event.Event) error {
	msg, err := EncodeEvent(topic, evt)
	if err != nil {
		return err
	}
	return p.Send(ctx, msg)
}

func (p *KafkaPublisher) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}

	partition, offset, err := p.producer.SendMessage(toProducerMessage(msg))
	if err != nil {
		log.Printf("[Kafka] 消息发送失败: topic=%s, key=%s, err=%v", msg.Topic, msg.Key, err)
		return fmt.Errorf("%w: topic=%s: %v", ErrPublish, msg.Topic, err)
	}

	log.Printf("[Kafka] 消息发送成功: topic=%s, key=%s, type=%s, partition=%d, offset=%d",
		msg.Topic, msg.Key, msg.Header(HeaderEventType), partition, offset)
	return nil
}

// Close 关闭底层生产者
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
