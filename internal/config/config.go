// Package config reads the service settings from the environment once at
// startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServiceName string
	Env         string
	LogLevel    string
	LogFile     string
	HTTPAddr    string

	Currency        string
	PaymentProvider string

	// Empty base URLs select the in-process identity directory and payment
	// simulator.
	IdentityBaseURL string
	PaymentBaseURL  string
	IdentityTimeout time.Duration
	PaymentTimeout  time.Duration

	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	PaymentDeclineRate   float64

	RedisAddr    string
	DatabaseURL  string
	KafkaBrokers string
	KafkaTopic   string
	EventBuffer  int
}

// Load reads the environment. Malformed numbers or durations are an error
// rather than a silent default.
func Load() (Config, error) {
	c := Config{
		ServiceName:     getenvDefault("SERVICE_NAME", "minishop"),
		Env:             getenvDefault("ENV", "dev"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		LogFile:         os.Getenv("LOG_FILE"),
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		Currency:        getenvDefault("ORDER_CURRENCY", "USD"),
		PaymentProvider: getenvDefault("PAYMENT_PROVIDER", "stripe"),
		IdentityBaseURL: os.Getenv("IDENTITY_BASE_URL"),
		PaymentBaseURL:  os.Getenv("PAYMENT_BASE_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:      getenvDefault("KAFKA_TOPIC", "order-events"),
	}

	var err error
	if c.IdentityTimeout, err = durationEnv("IDENTITY_TIMEOUT", 2*time.Second); err != nil {
		return Config{}, err
	}
	if c.PaymentTimeout, err = durationEnv("PAYMENT_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if c.RetryInitialInterval, err = durationEnv("RETRY_INITIAL_INTERVAL", 100*time.Millisecond); err != nil {
		return Config{}, err
	}
	if c.RetryMaxAttempts, err = intEnv("RETRY_MAX_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	if c.EventBuffer, err = intEnv("EVENT_BUFFER", 1024); err != nil {
		return Config{}, err
	}
	if c.PaymentDeclineRate, err = floatEnv("PAYMENT_DECLINE_RATE", 0.05); err != nil {
		return Config{}, err
	}
	if c.PaymentDeclineRate < 0 || c.PaymentDeclineRate > 1 {
		return Config{}, fmt.Errorf("config: PAYMENT_DECLINE_RATE must be within [0,1], got %v", c.PaymentDeclineRate)
	}
	if c.RetryMaxAttempts < 1 {
		return Config{}, fmt.Errorf("config: RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	return c, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", key, v)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}
