package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cache backend names
const (
	CacheBackendFile     = "file"
	CacheBackendRedis    = "redis"
	CacheBackendPostgres = "postgres"
	CacheBackendMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Edgar    EdgarConfig    `mapstructure:"edgar"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	DBName         string `mapstructure:"name"`
	SSLMode        string `mapstructure:"sslmode"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	JobsTopic   string   `mapstructure:"jobs_topic"`
	EventsTopic string   `mapstructure:"events_topic"`
	GroupID     string   `mapstructure:"group_id"`
}

// EdgarConfig holds SEC EDGAR client configuration
type EdgarConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	ClassifierMode string        `mapstructure:"classifier_mode"`
}

// CacheConfig selects and tunes the transaction cache
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	Dir           string        `mapstructure:"dir"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	LenientMaxAge time.Duration `mapstructure:"lenient_max_age"`
}

// SyncConfig tunes the sync engine
type SyncConfig struct {
	Workers       int `mapstructure:"workers"`
	Buffer        int `mapstructure:"buffer"`
	DefaultTarget int `mapstructure:"default_target"`
}

// AuthConfig holds API key and rate limit settings
type AuthConfig struct {
	AdminKey           string `mapstructure:"admin_key"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
}

// envBindings maps config keys to the environment variables that set them
var envBindings = map[string]string{
	"server.port":                "SERVER_PORT",
	"server.host":                "SERVER_HOST",
	"server.shutdown_timeout":    "SERVER_SHUTDOWN_TIMEOUT",
	"database.host":              "DB_HOST",
	"database.port":              "DB_PORT",
	"database.user":              "DB_USER",
	"database.password":          "DB_PASSWORD",
	"database.name":              "DB_NAME",
	"database.sslmode":           "DB_SSLMODE",
	"database.migrations_path":   "DB_MIGRATIONS_PATH",
	"redis.addr":                 "REDIS_ADDR",
	"redis.password":             "REDIS_PASSWORD",
	"redis.db":                   "REDIS_DB",
	"kafka.enabled":              "KAFKA_ENABLED",
	"kafka.brokers":              "KAFKA_BROKERS",
	"kafka.jobs_topic":           "KAFKA_JOBS_TOPIC",
	"kafka.events_topic":         "KAFKA_EVENTS_TOPIC",
	"kafka.group_id":             "KAFKA_GROUP_ID",
	"edgar.user_agent":           "EDGAR_USER_AGENT",
	"edgar.rate_limit":           "EDGAR_RATE_LIMIT",
	"edgar.timeout":              "EDGAR_TIMEOUT",
	"edgar.max_retries":          "EDGAR_MAX_RETRIES",
	"edgar.classifier_mode":      "EDGAR_CLASSIFIER_MODE",
	"cache.backend":              "CACHE_BACKEND",
	"cache.dir":                  "CACHE_DIR",
	"cache.max_age":              "CACHE_MAX_AGE",
	"cache.lenient_max_age":      "CACHE_LENIENT_MAX_AGE",
	"sync.workers":               "SYNC_WORKERS",
	"sync.buffer":                "SYNC_BUFFER",
	"sync.default_target":        "SYNC_DEFAULT_TARGET",
	"auth.admin_key":             "ADMIN_API_KEY",
	"auth.rate_limit_per_minute": "RATE_LIMIT_PER_MINUTE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "form4")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.migrations_path", "db/migrations")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.jobs_topic", "form4-jobs")
	v.SetDefault("kafka.events_topic", "form4-events")
	v.SetDefault("kafka.group_id", "form4-tracker")

	v.SetDefault("edgar.user_agent", "")
	v.SetDefault("edgar.rate_limit", 10.0)
	v.SetDefault("edgar.timeout", 10*time.Second)
	v.SetDefault("edgar.max_retries", 2)
	v.SetDefault("edgar.classifier_mode", "text")

	v.SetDefault("cache.backend", CacheBackendFile)
	v.SetDefault("cache.dir", "cache")
	v.SetDefault("cache.max_age", 24*time.Hour)
	v.SetDefault("cache.lenient_max_age", 7*24*time.Hour)

	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.buffer", 30)
	v.SetDefault("sync.default_target", 30)

	v.SetDefault("auth.admin_key", "")
	v.SetDefault("auth.rate_limit_per_minute", 60)
}

// Load reads configuration from an optional config file, a .env file and
// environment variables, in increasing order of precedence. An empty
// configFile searches for form4.yaml in the working directory.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("form4")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitBrokers(cfg.Kafka.Brokers)
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))

	return &cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Edgar.UserAgent) == "" {
		return errors.New("EDGAR_USER_AGENT is required (SEC asks for \"Name email@example.com\")")
	}
	if c.Edgar.RateLimit <= 0 {
		return fmt.Errorf("edgar rate limit must be positive, got %v", c.Edgar.RateLimit)
	}
	switch c.Edgar.ClassifierMode {
	case "text", "legacy":
	default:
		return fmt.Errorf("unknown classifier mode %q", c.Edgar.ClassifierMode)
	}
	switch c.Cache.Backend {
	case CacheBackendFile, CacheBackendRedis, CacheBackendPostgres, CacheBackendMemory:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync workers must be positive, got %d", c.Sync.Workers)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka is enabled but no brokers are configured")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// splitBrokers accepts both a list and a single comma-separated env value
func splitBrokers(in []string) []string {
	var out []string
	for _, b := range in {
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
