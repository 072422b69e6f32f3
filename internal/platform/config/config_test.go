package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"PLCWATCH_ADDR", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "RESOLVER_MAX_ATTEMPTS", "TIMELINE_CACHE_TTL", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 4, cfg.ResolverMaxAttempts)
	assert.Equal(t, DefaultTimelineTTL, cfg.Redis.TimelineTTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PLCWATCH_ADDR", ":9090")
	t.Setenv("RESOLVER_MAX_ATTEMPTS", "7")
	t.Setenv("TIMELINE_CACHE_TTL", "30s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("KAFKA_TOPIC", "plc")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 7, cfg.ResolverMaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Redis.TimelineTTL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "plc", cfg.Kafka.Topic)
	assert.True(t, cfg.Kafka.Enabled())
}

func TestFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("RESOLVER_MAX_ATTEMPTS", "many")
	t.Setenv("TIMELINE_CACHE_TTL", "soon")

	cfg := FromEnv()

	assert.Equal(t, 4, cfg.ResolverMaxAttempts)
	assert.Equal(t, DefaultTimelineTTL, cfg.Redis.TimelineTTL)
}
