package mq

import (
	"log"

	"merchantpay/internal/config"

	"github.com/IBM/sarama"
)

// kafkaVersion 幂等生产者和消费组都需要 0.11 以上的协议
var kafkaVersion = sarama.V2_1_0_0

// NewProducerConfig 生产者配置
func NewProducerConfig(cfg *config.KafkaConfig) *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = kafkaVersion
	kafkaConfig.ClientID = cfg.ClientID
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3                    // 重试次数
	kafkaConfig.Producer.Return.Successes = true          // 返回成功消息
	kafkaConfig.Producer.Idempotent = true                // 幂等生产，防止重试导致重复
	kafkaConfig.Producer.Compression = sarama.CompressionSnappy
	kafkaConfig.Net.MaxOpenRequests = 1 // 幂等生产要求
	return kafkaConfig
}

// NewConsumerConfig 消费组配置
//
// 关闭自动提交：只有处理成功的消息才提交 offset
func NewConsumerConfig(cfg *config.KafkaConfig) *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = kafkaVersion
	kafkaConfig.ClientID = cfg.ClientID
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	kafkaConfig.Consumer.Offsets.AutoCommit.Enable = false
	kafkaConfig.Consumer.Return.Errors = true
	return kafkaConfig
}

// InitKafka 初始化 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) sarama.SyncProducer {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig(cfg))
	if err != nil {
		log.Fatalf("创建 Kafka 生产者失败: %v", err)
	}

	log.Println("Kafka 生产者创建成功")
	return producer
}

// InitConsumerGroup 初始化消费组
func InitConsumerGroup(cfg *config.KafkaConfig, groupID string) sarama.ConsumerGroup {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, NewConsumerConfig(cfg))
	if err != nil {
		log.Fatalf("创建 Kafka 消费组失败: group=%s, err=%v", groupID, err)
	}

	log.Printf("Kafka 消费组创建成功: group=%s", groupID)
	return group
}
