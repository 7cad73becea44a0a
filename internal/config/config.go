package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ColdChainAPI/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	MQTT       MQTTConfig
	Notify     NotifyConfig
	Escalation EscalationConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	Environment     string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxHeaderBytes  int
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// DedupTTL bounds how long a (unit, source, recorded_at) triple is
	// remembered for redelivery detection.
	DedupTTL time.Duration
}

type MQTTConfig struct {
	Broker         string
	Port           int
	ClientID       string
	Username       string
	Password       string
	UplinkTopic    string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	AutoReconnect  bool
	Enabled        bool
}

type NotifyConfig struct {
	Stream         string
	ConsumerGroup  string
	Workers        int
	MaxAttempts    int
	InitialBackoff time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromName     string
	FromEmail    string

	SMSGatewayURL    string
	SMSGatewayToken  string
	PushGatewayURL   string
	PushGatewayToken string
}

type EscalationConfig struct {
	// TierIntervals are offsets between consecutive checks: tier N fires
	// TierIntervals[N-1] after the previous check. Organization-level
	// overrides are an external concern; this is the deployment default.
	TierIntervals []time.Duration
	RepeatFinal   bool
	PollInterval  time.Duration
}

type SecurityConfig struct {
	JWTSecret          string
	APIKeyHeader       string
	UplinkSharedSecret string
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	RateLimitPerMinute int
	EnableRateLimit    bool
}

type LoggingConfig struct {
	Level     logger.Level
	Mode      logger.Mode
	FilePath  string
	UseColors bool
}

var requiredEnvVars = []string{
	"DB_HOST",
	"DB_PORT",
	"DB_USER",
	"DB_PASSWORD",
	"DB_NAME",
	"REDIS_ADDR",
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	if err := validateRequired(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:     loadServerConfig(),
		Database:   loadDatabaseConfig(),
		Redis:      loadRedisConfig(),
		MQTT:       loadMQTTConfig(),
		Notify:     loadNotifyConfig(),
		Escalation: loadEscalationConfig(),
		Security:   loadSecurityConfig(),
		Logging:    loadLoggingConfig(),
	}

	return cfg, nil
}

func validateRequired() error {
	var missing []string

	for _, key := range requiredEnvVars {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SERVER_HOST", "0.0.0.0"),
		Port:            getEnvAsInt("SERVER_PORT", 8080),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", "15s"),
		ReadTimeout:     getEnvAsDuration("READ_TIMEOUT", "10s"),
		WriteTimeout:    getEnvAsDuration("WRITE_TIMEOUT", "10s"),
		MaxHeaderBytes:  getEnvAsInt("MAX_HEADER_BYTES", 1048576),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "coldchain_admin"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "coldchain"),
		SSLMode:         getEnv("DB_SSL_MODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", "5m"),
		ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", "5m"),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
		DedupTTL: getEnvAsDuration("INGEST_DEDUP_TTL", "10m"),
	}
}

func loadMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:         getEnv("MQTT_BROKER", "localhost"),
		Port:           getEnvAsInt("MQTT_PORT", 1883),
		ClientID:       getEnv("MQTT_CLIENT_ID", "coldchain-backend"),
		Username:       getEnv("MQTT_USERNAME", ""),
		Password:       getEnv("MQTT_PASSWORD", ""),
		UplinkTopic:    getEnv("MQTT_UPLINK_TOPIC", "coldchain/gateways/+/uplink"),
		QoS:            byte(getEnvAsInt("MQTT_QOS", 1)),
		KeepAlive:      getEnvAsDuration("MQTT_KEEP_ALIVE", "60s"),
		ConnectTimeout: getEnvAsDuration("MQTT_CONNECT_TIMEOUT", "10s"),
		AutoReconnect:  getEnvAsBool("MQTT_AUTO_RECONNECT", true),
		Enabled:        getEnvAsBool("MQTT_ENABLED", true),
	}
}

func loadNotifyConfig() NotifyConfig {
	return NotifyConfig{
		Stream:         getEnv("NOTIFY_STREAM", "coldchain:notifications"),
		ConsumerGroup:  getEnv("NOTIFY_CONSUMER_GROUP", "dispatchers"),
		Workers:        getEnvAsInt("NOTIFY_WORKERS", 4),
		MaxAttempts:    getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
		InitialBackoff: getEnvAsDuration("NOTIFY_INITIAL_BACKOFF", "2s"),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		FromName:     getEnv("SMTP_FROM_NAME", "ColdChain Alerts"),
		FromEmail:    getEnv("SMTP_FROM_EMAIL", "alerts@coldchain.local"),

		SMSGatewayURL:    getEnv("SMS_GATEWAY_URL", ""),
		SMSGatewayToken:  getEnv("SMS_GATEWAY_TOKEN", ""),
		PushGatewayURL:   getEnv("PUSH_GATEWAY_URL", ""),
		PushGatewayToken: getEnv("PUSH_GATEWAY_TOKEN", ""),
	}
}

func loadEscalationConfig() EscalationConfig {
	return EscalationConfig{
		TierIntervals: parseTiers(getEnv("ESCALATION_TIERS", "15m,30m,60m")),
		RepeatFinal:   getEnvAsBool("ESCALATION_REPEAT_FINAL", true),
		PollInterval:  getEnvAsDuration("ESCALATION_POLL_INTERVAL", "30s"),
	}
}

func loadSecurityConfig() SecurityConfig {
	origins := getEnv("CORS_ALLOWED_ORIGINS", "*")
	methods := getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS")

	return SecurityConfig{
		JWTSecret:          getEnv("JWT_SECRET", "coldchain_secret_change_in_production"),
		APIKeyHeader:       getEnv("API_KEY_HEADER", "X-API-Key"),
		UplinkSharedSecret: getEnv("UPLINK_SHARED_SECRET", ""),
		CORSAllowedOrigins: strings.Split(origins, ","),
		CORSAllowedMethods: strings.Split(methods, ","),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 300),
		EnableRateLimit:    getEnvAsBool("ENABLE_RATE_LIMIT", true),
	}
}

func loadLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:     logger.ParseLevel(getEnv("LOG_LEVEL", "info")),
		Mode:      logger.ParseMode(getEnv("LOG_MODE", "normal")),
		FilePath:  getEnv("LOG_FILE_PATH", ""),
		UseColors: getEnvAsBool("LOG_USE_COLORS", true),
	}
}

// parseTiers turns "15m,30m,60m" into durations, skipping anything that does
// not parse. An empty result falls back to a single 15 minute tier.
func parseTiers(s string) []time.Duration {
	var tiers []time.Duration
	for _, part := range strings.Split(s, ",") {
		if d, err := time.ParseDuration(strings.TrimSpace(part)); err == nil && d > 0 {
			tiers = append(tiers, d)
		}
	}
	if len(tiers) == 0 {
		tiers = []time.Duration{15 * time.Minute}
	}
	return tiers
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

func (c *Config) GetMQTTBroker() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTT.Broker, c.MQTT.Port)
}

func (c *Config) Validate() error {
	var errors []string

	if c.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD cannot be empty")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}

	if c.MQTT.Enabled && (c.MQTT.Port < 1 || c.MQTT.Port > 65535) {
		errors = append(errors, "MQTT_PORT must be between 1 and 65535")
	}

	if c.Notify.MaxAttempts < 1 {
		errors = append(errors, "NOTIFY_MAX_ATTEMPTS must be at least 1")
	}

	if c.Escalation.PollInterval <= 0 {
		errors = append(errors, "ESCALATION_POLL_INTERVAL must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func (c *Config) Print() {
	fmt.Println("╔══════════════════════════════════════════════════════════╗")
	fmt.Println("║           ColdChain Monitor - Configuration              ║")
	fmt.Println("╚══════════════════════════════════════════════════════════╝")
	fmt.Printf("Environment:     %s\n", c.Server.Environment)
	fmt.Printf("Server:          %s:%d\n", c.Server.Host, c.Server.Port)
	fmt.Printf("Database:        %s:%d/%s\n", c.Database.Host, c.Database.Port, c.Database.Database)
	fmt.Printf("Redis:           %s\n", c.Redis.Addr)
	fmt.Printf("MQTT Broker:     %s:%d (enabled=%t)\n", c.MQTT.Broker, c.MQTT.Port, c.MQTT.Enabled)
	fmt.Printf("Escalation:      %d tiers, poll %s\n", len(c.Escalation.TierIntervals), c.Escalation.PollInterval)
	fmt.Println("──────────────────────────────────────────────────────────")
}
