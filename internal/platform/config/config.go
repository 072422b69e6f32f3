package config

import (
	"os"
	"strconv"
	"time"

	strs "plcwatch/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr                string
	DatabaseURL         string
	LogLevel            string
	ResolverMaxAttempts int
	Redis               RedisConfig
	Kafka               KafkaConfig
}

// RedisConfig configures the optional timeline cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TimelineTTL  time.Duration
}

// KafkaConfig configures the optional export feed consumer. No brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Group   string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// DefaultTimelineTTL bounds how stale a cached timeline may be when an
// invalidation is lost.
var DefaultTimelineTTL = 5 * time.Minute

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:                envString("PLCWATCH_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		LogLevel:            envString("LOG_LEVEL", "info"),
		ResolverMaxAttempts: envInt("RESOLVER_MAX_ATTEMPTS", 4),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TimelineTTL:  envDuration("TIMELINE_CACHE_TTL", DefaultTimelineTTL),
		},
		Kafka: KafkaConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_TOPIC", "plc.export"),
			Group:   envString("KAFKA_GROUP", "plcwatch"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt falls back on unset or unparsable values.
func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	return strs.SplitList(os.Getenv(key))
}
