package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTiers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []time.Duration
	}{
		{"standard ladder", "15m,30m,60m", []time.Duration{15 * time.Minute, 30 * time.Minute, time.Hour}},
		{"whitespace tolerated", " 5m , 10m ", []time.Duration{5 * time.Minute, 10 * time.Minute}},
		{"garbage entries skipped", "15m,banana,30m", []time.Duration{15 * time.Minute, 30 * time.Minute}},
		{"zero and negative skipped", "0s,-5m,20m", []time.Duration{20 * time.Minute}},
		{"all garbage falls back", "nope", []time.Duration{15 * time.Minute}},
		{"empty falls back", "", []time.Duration{15 * time.Minute}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseTiers(tc.input))
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server:     ServerConfig{Port: 8080},
		Database:   DatabaseConfig{Port: 5432, Password: "secret"},
		MQTT:       MQTTConfig{Port: 1883, Enabled: true},
		Notify:     NotifyConfig{MaxAttempts: 3},
		Escalation: EscalationConfig{PollInterval: 30 * time.Second},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty db password", func(c *Config) { c.Database.Password = "" }, "DB_PASSWORD"},
		{"server port out of range", func(c *Config) { c.Server.Port = 70000 }, "SERVER_PORT"},
		{"db port zero", func(c *Config) { c.Database.Port = 0 }, "DB_PORT"},
		{"mqtt port invalid while enabled", func(c *Config) { c.MQTT.Port = -1 }, "MQTT_PORT"},
		{"delivery attempts below one", func(c *Config) { c.Notify.MaxAttempts = 0 }, "NOTIFY_MAX_ATTEMPTS"},
		{"poll interval not positive", func(c *Config) { c.Escalation.PollInterval = 0 }, "ESCALATION_POLL_INTERVAL"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateIgnoresMQTTPortWhenDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.Enabled = false
	cfg.MQTT.Port = 0
	assert.NoError(t, cfg.Validate())
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CC_TEST_STR", "value")
	t.Setenv("CC_TEST_INT", "42")
	t.Setenv("CC_TEST_BAD_INT", "fortytwo")
	t.Setenv("CC_TEST_BOOL", "false")
	t.Setenv("CC_TEST_DUR", "90s")

	assert.Equal(t, "value", getEnv("CC_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", getEnv("CC_TEST_MISSING", "fallback"))

	assert.Equal(t, 42, getEnvAsInt("CC_TEST_INT", 7))
	assert.Equal(t, 7, getEnvAsInt("CC_TEST_BAD_INT", 7))

	assert.False(t, getEnvAsBool("CC_TEST_BOOL", true))
	assert.True(t, getEnvAsBool("CC_TEST_MISSING", true))

	assert.Equal(t, 90*time.Second, getEnvAsDuration("CC_TEST_DUR", "10s"))
	assert.Equal(t, 10*time.Second, getEnvAsDuration("CC_TEST_MISSING", "10s"))
}

func TestGetDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = "db.internal"
	cfg.Database.User = "coldchain_admin"
	cfg.Database.Database = "coldchain"
	cfg.Database.SSLMode = "require"

	assert.Equal(t,
		"host=db.internal port=5432 user=coldchain_admin password=secret dbname=coldchain sslmode=require",
		cfg.GetDSN())
}
