package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"merchantpay/internal/config"
	"merchantpay/internal/handler"
	"merchantpay/internal/idempotency"
	"merchantpay/internal/infrastructure/cache"
	"merchantpay/internal/infrastructure/database"
	"merchantpay/internal/infrastructure/mq"
	"merchantpay/internal/job"
	"merchantpay/internal/service"
	"merchantpay/pkg/idgen"

	"github.com/joho/godotenv"
)

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg := config.LoadConfig(configPath)

	idgen.Init(1)

	db := database.InitDatabase(&cfg.Database)

	producer := mq.InitKafka(&cfg.Kafka)
	publisher := mq.NewKafkaPublisher(producer)
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 幂等存储
	var store idempotency.Store
	switch cfg.Idempotency.Backend {
	case "redis":
		redisClient := cache.InitRedis(&cfg.Redis)
		defer redisClient.Close()
		store = idempotency.NewRedisStore(redisClient, cfg.Idempotency.TTL, cfg.Idempotency.LockTTL)
	default:
		memStore := idempotency.NewMemoryStore(cfg.Idempotency.TTL)
		go memStore.RunSweeper(ctx, time.Minute)
		store = memStore
	}

	merchantService := service.NewMerchantService(db)
	paymentService := service.NewPaymentService(db, publisher, cfg.Kafka.Topic)
	withdrawalService := service.NewWithdrawalService(db, publisher, cfg.Kafka.Topic)
	ledgerService := service.NewLedgerService(db)

	// 启动后台任务
	outboxRelay := job.NewOutboxRelay(db, publisher, cfg.Business)
	go outboxRelay.Start(ctx)

	reconciler := job.NewBalanceReconciler(ledgerService, cfg.Business.ReconcileInterval)
	go reconciler.Start(ctx)

	h := handler.NewHandler(merchantService, paymentService, withdrawalService, ledgerService)
	router := handler.SetupRouter(h, store, cfg.Server.Mode)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 先停 HTTP，再停后台任务，保证正在处理的请求能发出事件
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	cancel()
	log.Println("服务已关闭")
}
