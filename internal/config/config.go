package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Fraud       FraudConfig       `mapstructure:"fraud"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Business    BusinessConfig    `mapstructure:"business"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin 模式：debug / release / test
}

// DatabaseConfig Driver 取 mysql 或 postgres
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogSQL       bool   `mapstructure:"log_sql"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers       []string         `mapstructure:"brokers"`
	ClientID      string           `mapstructure:"client_id"`
	Topic         KafkaTopicConfig `mapstructure:"topic"`
	ConsumerGroup string           `mapstructure:"consumer_group"`
	LoggerGroup   string           `mapstructure:"logger_group"`
	// 非致命错误后的固定等待时间
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`
}

type KafkaTopicConfig struct {
	PaymentEvents    string `mapstructure:"payment_events"`
	WithdrawalEvents string `mapstructure:"withdrawal_events"`
	DeadLetter       string `mapstructure:"dead_letter"`
}

// FraudConfig 风控规则与重试参数
type FraudConfig struct {
	HighValueThreshold   int64         `mapstructure:"high_value_threshold"`
	MinCompletedPayments int64         `mapstructure:"min_completed_payments"`
	MaxRetries           int           `mapstructure:"max_retries"`
	BaseDelay            time.Duration `mapstructure:"base_delay"`
}

type IdempotencyConfig struct {
	Backend string        `mapstructure:"backend"` // memory / redis
	TTL     time.Duration `mapstructure:"ttl"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type BusinessConfig struct {
	OutboxInterval    time.Duration `mapstructure:"outbox_interval"`
	OutboxGracePeriod time.Duration `mapstructure:"outbox_grace_period"`
	OutboxBatchSize   int           `mapstructure:"outbox_batch_size"`
	MaxRetryCount     int           `mapstructure:"max_retry_count"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.client_id", "merchantpay")
	v.SetDefault("kafka.topic.payment_events", "payment-events")
	v.SetDefault("kafka.topic.withdrawal_events", "withdrawal-events")
	v.SetDefault("kafka.topic.dead_letter", "dead-letter-queue")
	v.SetDefault("kafka.consumer_group", "fraud-detection-worker")
	v.SetDefault("kafka.logger_group", "withdrawal-event-logger")
	v.SetDefault("kafka.error_backoff", 5*time.Second)

	v.SetDefault("fraud.high_value_threshold", 100000)
	v.SetDefault("fraud.min_completed_payments", 0)
	v.SetDefault("fraud.max_retries", 3)
	v.SetDefault("fraud.base_delay", time.Second)

	v.SetDefault("idempotency.backend", "memory")
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("idempotency.lock_ttl", 30*time.Second)

	v.SetDefault("business.outbox_interval", time.Second)
	v.SetDefault("business.outbox_grace_period", 10*time.Second)
	v.SetDefault("business.outbox_batch_size", 100)
	v.SetDefault("business.max_retry_count", 10)
	v.SetDefault("business.reconcile_interval", 5*time.Minute)
}

// Load 读取配置文件，环境变量优先（server.port -> SERVER_PORT）
//
// configPath 为空时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig 加载配置文件，失败直接退出
func LoadConfig(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	GlobalConfig = cfg
	return cfg
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	switch c.Idempotency.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("不支持的幂等存储: %s", c.Idempotency.Backend)
	}
	if c.Fraud.MaxRetries < 0 {
		return fmt.Errorf("fraud.max_retries 不能为负数")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers 不能为空")
	}
	return nil
}

// RedisAddr host:port
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
