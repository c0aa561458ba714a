package mq

import (
	"sort"
	"time"

	"github.com/IBM/sarama"
)

// 消息头
const (
	HeaderEventType  = "event-type"
	HeaderOccurredAt = "occurred-at"
)

// Message 与 Kafka 客户端无关的消息表示，生产和消费共用
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       string
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Header 取消息头，不存在返回空串
func (m *Message) Header(key string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

func toProducerMessage(msg *Message) *sarama.ProducerMessage {
	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]sarama.RecordHeader, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(msg.Headers[k]),
		})
	}

	return &sarama.ProducerMessage{
		Topic:   msg.Topic,
		Key:     sarama.StringEncoder(msg.Key),
		Value:   sarama.ByteEncoder(msg.Value),
		Headers: headers,
	}
}

func fromConsumerMessage(m *sarama.ConsumerMessage) *Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		if h == nil {
			continue
		}
		headers[string(h.Key)] = string(h.Value)
	}
	return &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       string(m.Key),
		Value:     m.Value,
		Headers:   headers,
		Timestamp: m.Timestamp,
	}
}
