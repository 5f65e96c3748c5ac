// Package config loads server configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server settings. Every field has a default so the
// server can start with an empty environment.
type Config struct {
	// Port the HTTP server listens on.
	Port string
	// DBPath is the SQLite database file.
	DBPath string
	// LogLevel is the minimum log level (debug/info/warn/error).
	LogLevel string
	// LogPretty enables human-readable console logs.
	LogPretty bool
	// CORSOrigin is the allowed origin for browser clients. "*" allows all.
	CORSOrigin string
	// EvictGrace is how long an empty room stays cached before eviction.
	EvictGrace time.Duration
	// PersistQueueSize bounds the async persistence queue.
	PersistQueueSize int
	// MessagesPerSecond and MessageBurst bound each client's edit rate.
	MessagesPerSecond float64
	MessageBurst      int
}

// Load reads configuration from the environment, preferring a .env file
// when one is present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PAIRPAD_PORT", "8080"),
		DBPath:            getEnv("PAIRPAD_DB_PATH", "./data/pairpad.db"),
		LogLevel:          getEnv("PAIRPAD_LOG_LEVEL", "info"),
		LogPretty:         getEnvBool("PAIRPAD_LOG_PRETTY", false),
		CORSOrigin:        getEnv("PAIRPAD_CORS_ORIGIN", "*"),
		EvictGrace:        getEnvDuration("PAIRPAD_EVICT_GRACE", time.Minute),
		PersistQueueSize:  getEnvInt("PAIRPAD_PERSIST_QUEUE", 256),
		MessagesPerSecond: 100,
		MessageBurst:      200,
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
