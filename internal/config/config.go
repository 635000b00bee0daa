package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL        MySQLConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Migrate      bool
	HTTPAddr     string
	LogLevel     string
	Platform     PlatformConfig
	Hosting      HostingConfig
	Publish      PublishConfig
	Generation   GenerationConfig
	DomainWorker DomainWorkerConfig
	Admin        AdminConfig
	Archive      ArchiveConfig
	AMQP         AMQPConfig
	WebSocket    WebSocketConfig
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	Issuer        string
	ExpireMinutes int
}

// PlatformConfig describes where published sites live
type PlatformConfig struct {
	BaseDomain string // e.g. platform.example -> {slug}.platform.example
	Framework  string // framework hint passed to the hosting provider
}

// HostingConfig holds hosting provider configuration
type HostingConfig struct {
	APIBase           string
	Token             string
	TeamID            string
	UploadAttempts    int
	UploadConcurrency int
	RequestsPerSec    float64
	Burst             int
}

// PublishConfig holds publish pipeline configuration
type PublishConfig struct {
	BudgetSec        int
	PollIntervalMs   int
	BatchConcurrency int
	RepublishCron    string // empty disables scheduled re-publish
	LockTTLSec       int
}

// GenerationConfig holds generation pipeline configuration
type GenerationConfig struct {
	BudgetSec        int
	StaleAfterMin    int
	SweepIntervalSec int
}

// DomainWorkerConfig holds domain verification worker configuration
type DomainWorkerConfig struct {
	Enabled     bool
	IntervalSec int
	BatchSize   int
	MaxAttempts int // 0 = retry forever
}

// AdminConfig holds the shared secret for batch operations
type AdminConfig struct {
	SecretHash string // bcrypt hash, preferred
	Secret     string // plaintext fallback
}

// ArchiveConfig holds S3 archive configuration; empty bucket disables archiving
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// AMQPConfig holds RabbitMQ configuration; empty URL keeps verification in-process
type AMQPConfig struct {
	URL   string
	Queue string
}

// WebSocketConfig holds socket.io configuration
type WebSocketConfig struct {
	Enabled bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getEnv("JWT_ISSUER", "go_sitegen"),

			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
		},
		Migrate:  getEnv("MIGRATE", "0") == "1",
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Platform: PlatformConfig{
			BaseDomain: getEnv("PLATFORM_BASE_DOMAIN", "platform.example"),
			Framework:  getEnv("PLATFORM_FRAMEWORK", "nextjs"),
		},
		Hosting: HostingConfig{
			APIBase:           getEnv("HOSTING_API_BASE", "https://api.vercel.com"),
			Token:             getEnv("HOSTING_TOKEN", ""),
			TeamID:            getEnv("HOSTING_TEAM_ID", ""),
			UploadAttempts:    getEnvInt("HOSTING_UPLOAD_ATTEMPTS", 3),
			UploadConcurrency: getEnvInt("HOSTING_UPLOAD_CONCURRENCY", 4),
			RequestsPerSec:    getEnvFloat("HOSTING_REQUESTS_PER_SEC", 10),
			Burst:             getEnvInt("HOSTING_BURST", 5),
		},
		Publish: PublishConfig{
			BudgetSec:        getEnvInt("PUBLISH_BUDGET_SEC", 300),
			PollIntervalMs:   getEnvInt("PUBLISH_POLL_INTERVAL_MS", 3000),
			BatchConcurrency: getEnvInt("PUBLISH_BATCH_CONCURRENCY", 1),
			RepublishCron:    getEnv("PUBLISH_REPUBLISH_CRON", ""),
			LockTTLSec:       getEnvInt("PUBLISH_LOCK_TTL_SEC", 360),
		},
		Generation: GenerationConfig{
			BudgetSec:        getEnvInt("GENERATION_BUDGET_SEC", 600),
			StaleAfterMin:    getEnvInt("GENERATION_STALE_AFTER_MIN", 30),
			SweepIntervalSec: getEnvInt("GENERATION_SWEEP_INTERVAL_SEC", 60),
		},
		DomainWorker: DomainWorkerConfig{
			Enabled:     getEnv("DOMAIN_WORKER_ENABLED", "1") == "1",
			IntervalSec: getEnvInt("DOMAIN_WORKER_INTERVAL_SEC", 60),
			BatchSize:   getEnvInt("DOMAIN_WORKER_BATCH_SIZE", 20),
			MaxAttempts: getEnvInt("DOMAIN_MAX_ATTEMPTS", 0),
		},
		Admin: AdminConfig{
			SecretHash: getEnv("ADMIN_SECRET_HASH", ""),
			Secret:     getEnv("ADMIN_SECRET", ""),
		},
		Archive: ArchiveConfig{
			Bucket:   getEnv("ARCHIVE_S3_BUCKET", ""),
			Region:   getEnv("ARCHIVE_S3_REGION", "us-east-1"),
			Endpoint: getEnv("ARCHIVE_S3_ENDPOINT", ""),
			Prefix:   getEnv("ARCHIVE_S3_PREFIX", "versions"),

			AccessKeyID:     getEnv("ARCHIVE_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARCHIVE_S3_SECRET_ACCESS_KEY", ""),
		},
		AMQP: AMQPConfig{
			URL:   getEnv("AMQP_URL", ""),
			Queue: getEnv("AMQP_VERIFY_QUEUE", "domain.verify"),
		},
		WebSocket: WebSocketConfig{
			Enabled: getEnv("WS_ENABLED", "1") == "1",
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.MySQL.DSN == "" {
		return fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Hosting.UploadAttempts < 1 {
		cfg.Hosting.UploadAttempts = 1
	}
	if cfg.Hosting.UploadConcurrency < 1 {
		cfg.Hosting.UploadConcurrency = 1
	}
	if cfg.Publish.BatchConcurrency < 1 {
		cfg.Publish.BatchConcurrency = 1
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueFloat := func(envKey, iniSection, iniKey string, defaultValue float64) float64 {
		if value := os.Getenv(envKey); value != "" {
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				return f
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Float64(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret: getValue("JWT_SECRET", "jwt", "secret", ""),
			Issuer: getValue("JWT_ISSUER", "jwt", "issuer", "go_sitegen"),

			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
		},
		Migrate:  getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
		LogLevel: getValue("LOG_LEVEL", "app", "log_level", "info"),
		Platform: PlatformConfig{
			BaseDomain: getValue("PLATFORM_BASE_DOMAIN", "platform", "base_domain", "platform.example"),
			Framework:  getValue("PLATFORM_FRAMEWORK", "platform", "framework", "nextjs"),
		},
		Hosting: HostingConfig{
			APIBase:           getValue("HOSTING_API_BASE", "hosting", "api_base", "https://api.vercel.com"),
			Token:             getValue("HOSTING_TOKEN", "hosting", "token", ""),
			TeamID:            getValue("HOSTING_TEAM_ID", "hosting", "team_id", ""),
			UploadAttempts:    getValueInt("HOSTING_UPLOAD_ATTEMPTS", "hosting", "upload_attempts", 3),
			UploadConcurrency: getValueInt("HOSTING_UPLOAD_CONCURRENCY", "hosting", "upload_concurrency", 4),
			RequestsPerSec:    getValueFloat("HOSTING_REQUESTS_PER_SEC", "hosting", "requests_per_sec", 10),
			Burst:             getValueInt("HOSTING_BURST", "hosting", "burst", 5),
		},
		Publish: PublishConfig{
			BudgetSec:        getValueInt("PUBLISH_BUDGET_SEC", "publish", "budget_sec", 300),
			PollIntervalMs:   getValueInt("PUBLISH_POLL_INTERVAL_MS", "publish", "poll_interval_ms", 3000),
			BatchConcurrency: getValueInt("PUBLISH_BATCH_CONCURRENCY", "publish", "batch_concurrency", 1),
			RepublishCron:    getValue("PUBLISH_REPUBLISH_CRON", "publish", "republish_cron", ""),
			LockTTLSec:       getValueInt("PUBLISH_LOCK_TTL_SEC", "publish", "lock_ttl_sec", 360),
		},
		Generation: GenerationConfig{
			BudgetSec:        getValueInt("GENERATION_BUDGET_SEC", "generation", "budget_sec", 600),
			StaleAfterMin:    getValueInt("GENERATION_STALE_AFTER_MIN", "generation", "stale_after_min", 30),
			SweepIntervalSec: getValueInt("GENERATION_SWEEP_INTERVAL_SEC", "generation", "sweep_interval_sec", 60),
		},
		DomainWorker: DomainWorkerConfig{
			Enabled:     getValueBool("DOMAIN_WORKER_ENABLED", "domain_worker", "enabled", true),
			IntervalSec: getValueInt("DOMAIN_WORKER_INTERVAL_SEC", "domain_worker", "interval_sec", 60),
			BatchSize:   getValueInt("DOMAIN_WORKER_BATCH_SIZE", "domain_worker", "batch_size", 20),
			MaxAttempts: getValueInt("DOMAIN_MAX_ATTEMPTS", "domain_worker", "max_attempts", 0),
		},
		Admin: AdminConfig{
			SecretHash: getValue("ADMIN_SECRET_HASH", "admin", "secret_hash", ""),
			Secret:     getValue("ADMIN_SECRET", "admin", "secret", ""),
		},
		Archive: ArchiveConfig{
			Bucket:   getValue("ARCHIVE_S3_BUCKET", "archive", "bucket", ""),
			Region:   getValue("ARCHIVE_S3_REGION", "archive", "region", "us-east-1"),
			Endpoint: getValue("ARCHIVE_S3_ENDPOINT", "archive", "endpoint", ""),
			Prefix:   getValue("ARCHIVE_S3_PREFIX", "archive", "prefix", "versions"),

			AccessKeyID:     getValue("ARCHIVE_S3_ACCESS_KEY_ID", "archive", "access_key_id", ""),
			SecretAccessKey: getValue("ARCHIVE_S3_SECRET_ACCESS_KEY", "archive", "secret_access_key", ""),
		},
		AMQP: AMQPConfig{
			URL:   getValue("AMQP_URL", "amqp", "url", ""),
			Queue: getValue("AMQP_VERIFY_QUEUE", "amqp", "verify_queue", "domain.verify"),
		},
		WebSocket: WebSocketConfig{
			Enabled: getValueBool("WS_ENABLED", "websocket", "enabled", true),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
