package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the service configuration, loaded from the environment with a
// .env file as a development convenience.
type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	DatabaseURL string
	RedisURL    string

	// Kafka audit stream; empty brokers disable publishing
	KafkaBrokers []string
	KafkaTopic   string

	// Print engine tunables
	MaxQuestionsPerPrint  int
	TrueFalsePenalty      float64
	NegativeChoiceMarking bool
}

// LoadConfig reads configuration from the environment. A missing .env file is
// not an error; unset keys fall back to development defaults.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		KafkaTopic: getEnv("KAFKA_TOPIC", "examprint.events"),

		MaxQuestionsPerPrint:  getEnvInt("MAX_QUESTIONS_PER_PRINT", 100),
		TrueFalsePenalty:      getEnvFloat("TRUE_FALSE_PENALTY", -0.5),
		NegativeChoiceMarking: getEnvBool("NEGATIVE_CHOICE_MARKING", true),
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.MaxQuestionsPerPrint <= 0 {
		return nil, fmt.Errorf("MAX_QUESTIONS_PER_PRINT must be positive, got %d", cfg.MaxQuestionsPerPrint)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
