package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"SERVICE_NAME", "HTTP_ADDR", "PAYMENT_TIMEOUT", "RETRY_MAX_ATTEMPTS", "PAYMENT_DECLINE_RATE", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "minishop", c.ServiceName)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, 5*time.Second, c.PaymentTimeout)
	assert.Equal(t, 3, c.RetryMaxAttempts)
	assert.Equal(t, 0.05, c.PaymentDeclineRate)
	assert.Empty(t, c.RedisAddr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("IDENTITY_TIMEOUT", "750ms")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("PAYMENT_DECLINE_RATE", "0")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", c.HTTPAddr)
	assert.Equal(t, 750*time.Millisecond, c.IdentityTimeout)
	assert.Equal(t, 5, c.RetryMaxAttempts)
	assert.Zero(t, c.PaymentDeclineRate)
	assert.Equal(t, "localhost:9092", c.KafkaBrokers)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := map[string]string{
		"PAYMENT_TIMEOUT":      "soon",
		"RETRY_MAX_ATTEMPTS":   "0",
		"EVENT_BUFFER":         "big",
		"PAYMENT_DECLINE_RATE": "1.5",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.ErrorContains(t, err, key)
		})
	}
}
