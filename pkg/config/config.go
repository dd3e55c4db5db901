// Package config loads service configuration from the environment, with an
// optional .env file for local development. Every knob has a default that
// works against the docker-compose stack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Gateway GatewayConfig
	API     APIConfig
	Scylla  ScyllaConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Auth    AuthConfig
	Chat    ChatConfig
}

type GatewayConfig struct {
	Addr    string
	LogFile string
	NodeID  int64 // snowflake node, unique per gateway instance
}

type APIConfig struct {
	Addr   string
	NodeID int64 // snowflake node for REST-path sends, distinct from the gateway's
}

type ScyllaConfig struct {
	Hosts    []string
	Keyspace string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// ChatConfig holds the tunables of the live core.
type ChatConfig struct {
	// PresenceGrace is how long after a user's last connection closes before
	// an offline event is emitted, absent a reconnect.
	PresenceGrace time.Duration
	// TypingTimeout is the server-side hard expiry for typing indicators,
	// covering dropped stop events.
	TypingTimeout time.Duration
	// TypingSweep is how often expired typing entries are collected.
	TypingSweep time.Duration
	// SendQueue is the per-connection outbound buffer; a connection that
	// falls this far behind is closed.
	SendQueue int
	// DedupWindow is how many recent idempotency tokens are remembered per
	// sender.
	DedupWindow int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Gateway: GatewayConfig{
			Addr:    getEnv("GATEWAY_ADDR", ":8080"),
			LogFile: getEnv("GATEWAY_LOG_FILE", ""),
			NodeID:  int64(getEnvAsInt("GATEWAY_NODE_ID", 1)),
		},
		API: APIConfig{
			Addr:   getEnv("API_ADDR", ":8081"),
			NodeID: int64(getEnvAsInt("API_NODE_ID", 2)),
		},
		Scylla: ScyllaConfig{
			Hosts:    splitList(getEnv("SCYLLA_HOSTS", "localhost:9042")),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "careconnect_chat"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:19092")),
			Topic:   getEnv("KAFKA_TOPIC", "room-events"),
		},
		Auth: AuthConfig{
			Secret:   getEnv("AUTH_SECRET", "dev-secret-change-me"),
			TokenTTL: getEnvAsDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		},
		Chat: ChatConfig{
			PresenceGrace: getEnvAsDuration("PRESENCE_GRACE", 15*time.Second),
			TypingTimeout: getEnvAsDuration("TYPING_TIMEOUT", 6*time.Second),
			TypingSweep:   getEnvAsDuration("TYPING_SWEEP", time.Second),
			SendQueue:     getEnvAsInt("SEND_QUEUE", 256),
			DedupWindow:   getEnvAsInt("DEDUP_WINDOW", 64),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.Secret == "" {
		return fmt.Errorf("AUTH_SECRET must be set")
	}
	if len(c.Scylla.Hosts) == 0 {
		return fmt.Errorf("SCYLLA_HOSTS must be set")
	}
	if c.Chat.PresenceGrace <= 0 || c.Chat.TypingTimeout <= 0 {
		return fmt.Errorf("presence grace and typing timeout must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
