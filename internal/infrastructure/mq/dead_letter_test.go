package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"merchantpay/internal/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePublisher 记录发送的消息
type capturePublisher struct {
	sent []*Message
	err  error
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, evt event.Event) error {
	msg, err := EncodeEvent(topic, evt)
	if err != nil {
		return err
	}
	return p.Send(ctx, msg)
}

func (p *capturePublisher) Send(_ context.Context, msg *Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func sampleRecord() *event.FailedEventRecord {
	now := time.Now().UTC()
	return &event.FailedEventRecord{
		OriginalTopic:     "payment-events",
		EventType:         event.TypePaymentCreated,
		EventPayload:      `{"eventId":"evt-1","paymentId":"p-1"}`,
		FailureReason:     "database unavailable",
		ExceptionDetails:  "dial tcp: refused",
		RetryCount:        3,
		FirstFailedAt:     now.Add(-time.Minute),
		LastFailedAt:      now,
		ConsumerGroup:     "fraud-detection-worker",
		OriginalPartition: 2,
		OriginalOffset:    42,
	}
}

func TestPublishDeadLetter(t *testing.T) {
	pub := &capturePublisher{}
	dlq := NewDeadLetterPublisher(pub, "dead-letter-queue")

	require.NoError(t, dlq.PublishDeadLetter(context.Background(), sampleRecord()))
	require.Len(t, pub.sent, 1)

	msg := pub.sent[0]
	assert.Equal(t, "dead-letter-queue", msg.Topic)
	assert.Equal(t, "payment-events:2:42", msg.Key)
	assert.Equal(t, "payment-events", msg.Header(HeaderOriginalTopic))
	assert.Equal(t, event.TypePaymentCreated, msg.Header(HeaderOriginalEventType))
	assert.Equal(t, "database unavailable", msg.Header(HeaderFailureReason))
	assert.Equal(t, "3", msg.Header(HeaderRetryCount))
	assert.Equal(t, "fraud-detection-worker", msg.Header(HeaderConsumerGroup))
	assert.NotEmpty(t, msg.Header(HeaderDLQTimestamp))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.EqualValues(t, 42, body["originalOffset"])
	assert.Contains(t, body, "sentToDlqAt")
}

func TestPublishDeadLetterFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	dlq := NewDeadLetterPublisher(pub, "dead-letter-queue")

	err := dlq.PublishDeadLetter(context.Background(), sampleRecord())
	assert.Error(t, err)
}

func TestDeadLetterReplay(t *testing.T) {
	pub := &capturePublisher{}
	dlq := NewDeadLetterPublisher(pub, "dead-letter-queue")
	require.NoError(t, dlq.PublishDeadLetter(context.Background(), sampleRecord()))

	dl, err := DecodeDeadLetter(pub.sent[0].Value)
	require.NoError(t, err)

	replay := dl.ReplayMessage()
	assert.Equal(t, "payment-events", replay.Topic)
	assert.Equal(t, "evt-1", replay.Key)
	assert.Equal(t, event.TypePaymentCreated, replay.Header(HeaderEventType))
	assert.JSONEq(t, `{"eventId":"evt-1","paymentId":"p-1"}`, string(replay.Value))

	_, err = DecodeDeadLetter([]byte(`{"eventType":"x"}`))
	assert.Error(t, err)
}
