package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	HTTP       ServerConfig
	MySQL      MySQLConfig
	Redis      RedisConfig
	Log        LogConfig
	Chain      ChainConfig
	Monitoring MonitoringConfig
	Webhooks   WebhooksConfig
	Jobs       JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	// Addr empty disables the job locks; workers then rely on deployment
	// guaranteeing a single instance per job.
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level string
}

type ChainConfig struct {
	RPCURL         string
	LookbackBlocks uint64
	USDCContract   string
	USDTContract   string
}

type MonitoringConfig struct {
	RequiredConfirmations int64

	// Timeout forces a payment to FAILED when no confirmation arrives
	// within the window from monitoring_started_at.
	Timeout   time.Duration
	BatchSize int32
}

type WebhooksConfig struct {
	MaxDeliveryAttempts int32
	BackoffBase         time.Duration
	BackoffCap          time.Duration
	DeliveryTimeout     time.Duration
	DispatchConcurrency int
	StaleAttemptAfter   time.Duration
	JobBatchSize        int32
}

type JobsConfig struct {
	MonitorInterval  time.Duration
	DispatchInterval time.Duration
	RecoverInterval  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "notify-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Chain: ChainConfig{
			RPCURL:         getEnv("CHAIN_RPC_URL", ""),
			LookbackBlocks: uint64(getIntEnv("CHAIN_LOOKBACK_BLOCKS", 5000)),
			USDCContract:   getEnv("CHAIN_USDC_CONTRACT", ""),
			USDTContract:   getEnv("CHAIN_USDT_CONTRACT", ""),
		},
		Monitoring: MonitoringConfig{
			RequiredConfirmations: int64(getIntEnv("MONITORING_REQUIRED_CONFIRMATIONS", 6)),
			Timeout:               getMinutesEnv("MONITORING_TIMEOUT_MINUTES", 60*time.Minute),
			BatchSize:             int32(getIntEnv("MONITORING_BATCH_SIZE", 100)),
		},
		Webhooks: WebhooksConfig{
			MaxDeliveryAttempts: int32(getIntEnv("WEBHOOKS_MAX_DELIVERY_ATTEMPTS", 8)),
			BackoffBase:         getSecondsEnv("WEBHOOKS_BACKOFF_BASE_SECONDS", 30*time.Second),
			BackoffCap:          getSecondsEnv("WEBHOOKS_BACKOFF_CAP_SECONDS", time.Hour),
			DeliveryTimeout:     getSecondsEnv("WEBHOOKS_DELIVERY_TIMEOUT_SECONDS", 10*time.Second),
			DispatchConcurrency: getIntEnv("WEBHOOKS_DISPATCH_CONCURRENCY", 8),
			StaleAttemptAfter:   getSecondsEnv("WEBHOOKS_STALE_ATTEMPT_AFTER_SECONDS", 120*time.Second),
			JobBatchSize:        int32(getIntEnv("WEBHOOKS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			MonitorInterval:  getSecondsEnv("JOBS_MONITOR_INTERVAL_SECONDS", 15*time.Second),
			DispatchInterval: getSecondsEnv("JOBS_DISPATCH_INTERVAL_SECONDS", 15*time.Second),
			RecoverInterval:  getMinutesEnv("JOBS_RECOVER_INTERVAL_MINUTES", 5*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
