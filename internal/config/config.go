// Package config loads the core's configuration from the environment
// using small typed getEnv/getEnvAsInt helpers rather than a config
// library.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Logging   LoggingConfig
	Queue     QueueConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Window            time.Duration
}

type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
}

type DatabaseConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	SchemaPrefix    string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

func (c DatabaseConfig) ConnectionString() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

type KafkaConfig struct {
	Brokers  []string
	ClientID string
	Enabled  bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

// QueueConfig holds every dispatcher/queue tunable: poll_interval,
// max_retries, base_retry_delay, max_retry_delay, occ_max_retries,
// occ_base_interval, processor_name, plus the stall threshold used by the
// sweeper. The schema prefix lives in DatabaseConfig.SchemaPrefix.
type QueueConfig struct {
	PollInterval     time.Duration
	MaxRetries       int
	BaseRetryDelay   time.Duration
	MaxRetryDelay    time.Duration
	OCCMaxRetries    int
	OCCBaseInterval  time.Duration
	ProcessorName    string
	StallThreshold   time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Database:        getEnv("DB_NAME", "ledger"),
			User:            getEnv("DB_USER", "ledger"),
			Password:        getEnv("DB_PASSWORD", "ledger"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			SchemaPrefix:    getEnv("DB_SCHEMA_PREFIX", "public"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnv("DB_CONN_MAX_LIFETIME", "30m"),
		},
		Kafka: KafkaConfig{
			Brokers:  getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			ClientID: getEnv("KAFKA_CLIENT_ID", "ledger-core"),
			Enabled:  getEnvAsBool("KAFKA_ENABLED", true),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Queue: QueueConfig{
			PollInterval:    getEnvAsDuration("QUEUE_POLL_INTERVAL", 5*time.Second),
			MaxRetries:      getEnvAsInt("QUEUE_MAX_RETRIES", 5),
			BaseRetryDelay:  getEnvAsDuration("QUEUE_BASE_RETRY_DELAY", 30*time.Second),
			MaxRetryDelay:   getEnvAsDuration("QUEUE_MAX_RETRY_DELAY", time.Hour),
			OCCMaxRetries:   getEnvAsInt("QUEUE_OCC_MAX_RETRIES", 5),
			OCCBaseInterval: getEnvAsDuration("QUEUE_OCC_BASE_INTERVAL", 200*time.Millisecond),
			ProcessorName:   getEnv("QUEUE_PROCESSOR_NAME", "event_queue"),
			StallThreshold:  getEnvAsDuration("QUEUE_STALL_THRESHOLD", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 600),
			Window:            getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		CORS: CORSConfig{
			AllowOrigins:     getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowMethods:     getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowHeaders:     getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := getEnv(name, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valStr := getEnv(name, "")
	if val, err := time.ParseDuration(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsSlice(name string, defaultVal []string) []string {
	valStr := getEnv(name, "")
	if valStr == "" {
		return defaultVal
	}
	return strings.Split(valStr, ",")
}
