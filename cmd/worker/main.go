package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"merchantpay/internal/config"
	"merchantpay/internal/fraud"
	"merchantpay/internal/infrastructure/database"
	"merchantpay/internal/infrastructure/mq"
	"merchantpay/internal/job"
	"merchantpay/internal/service"
	"merchantpay/pkg/idgen"

	"github.com/joho/godotenv"
)

var _ fraud.PaymentReviewer = (*service.PaymentService)(nil)

func main() {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg := config.LoadConfig(configPath)

	idgen.Init(2)

	db := database.InitDatabase(&cfg.Database)

	producer := mq.InitKafka(&cfg.Kafka)
	publisher := mq.NewKafkaPublisher(producer)
	defer publisher.Close()

	paymentService := service.NewPaymentService(db, publisher, cfg.Kafka.Topic)

	pipeline := fraud.NewPipeline(
		fraud.Config{
			PaymentTopic:  cfg.Kafka.Topic.PaymentEvents,
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
			MaxRetries:    cfg.Fraud.MaxRetries,
			BaseDelay:     cfg.Fraud.BaseDelay,
		},
		paymentService,
		publisher,
		mq.NewDeadLetterPublisher(publisher, cfg.Kafka.Topic.DeadLetter),
		fraud.DefaultRules(cfg.Fraud.HighValueThreshold, cfg.Fraud.MinCompletedPayments, paymentService),
	)

	fraudConsumer := mq.NewConsumer(
		mq.InitConsumerGroup(&cfg.Kafka, cfg.Kafka.ConsumerGroup),
		cfg.Kafka.ConsumerGroup,
		[]string{cfg.Kafka.Topic.PaymentEvents},
		cfg.Kafka.ErrorBackoff,
	)
	defer fraudConsumer.Close()

	loggerConsumer := mq.NewConsumer(
		mq.InitConsumerGroup(&cfg.Kafka, cfg.Kafka.LoggerGroup),
		cfg.Kafka.LoggerGroup,
		[]string{cfg.Kafka.Topic.WithdrawalEvents},
		cfg.Kafka.ErrorBackoff,
	)
	defer loggerConsumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	run := func(name string, c *mq.Consumer, h mq.Handler) {
		defer wg.Done()
		if err := c.Run(ctx, h); err != nil {
			log.Printf("[Worker] [ERROR] %s 消费任务异常退出: %v", name, err)
			cancel()
		}
	}

	wg.Add(2)
	go run("fraud", fraudConsumer, pipeline.Handle)
	go run("withdrawal-logger", loggerConsumer, job.WithdrawalEventLogger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("正在关闭 worker...")
	case <-ctx.Done():
	}

	cancel()
	wg.Wait()
	if n := pipeline.Pending(); n > 0 {
		log.Printf("[Worker] %d 条消息重试未完成，重启后从未提交的 offset 重新消费", n)
	}
	log.Println("worker 已关闭")
}
