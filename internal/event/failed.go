package event

import "time"

// FailedEventRecord 进入死信队列的消息记录
type FailedEventRecord struct {
	OriginalTopic     string    `json:"originalTopic"`
	EventType         string    `json:"eventType"`
	EventPayload      string    `json:"eventPayload"`
	FailureReason     string    `json:"failureReason"`
	ExceptionDetails  string    `json:"exceptionDetails"`
	RetryCount        int       `json:"retryCount"`
	FirstFailedAt     time.Time `json:"firstFailedAt"`
	LastFailedAt      time.Time `json:"lastFailedAt"`
	ConsumerGroup     string    `json:"consumerGroup"`
	OriginalPartition int32     `json:"originalPartition"`
	OriginalOffset    int64     `json:"originalOffset"`
}
