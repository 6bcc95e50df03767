package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"authz-service/internal/ratelimit"
	"authz-service/internal/token"
	"authz-service/internal/util"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Logging     LoggingConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Token       TokenConfig
	RateLimit   RateLimitConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	CertFile     string
	KeyFile      string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	AuditTopic string
}

type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
}

type RateLimitConfig struct {
	// FailOpen admits requests when the counter store is unreachable.
	// Defaults to false: an outage denies rather than silently admitting.
	FailOpen     bool
	CheckTimeout time.Duration
	Buckets      int
	Rules        ratelimit.Rules
}

// LoadConfig reads the environment once at startup. The process refuses to
// start without JWT_SECRET or with malformed token lifetimes.
func LoadConfig() (*Config, error) {
	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	accessTTL, err := token.ParseLifetime(util.GetEnv("JWT_EXPIRES_IN", "15m"))
	if err != nil {
		return nil, fmt.Errorf("JWT_EXPIRES_IN: %w", err)
	}
	refreshTTL, err := token.ParseLifetime(util.GetEnv("REFRESH_TOKEN_EXPIRES_IN", "7d"))
	if err != nil {
		return nil, fmt.Errorf("REFRESH_TOKEN_EXPIRES_IN: %w", err)
	}

	rules, err := loadWindowRules()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment: util.GetEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:         util.GetEnv("SERVER_HOST", "0.0.0.0"),
			Port:         util.GetEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  util.GetEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: util.GetEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  util.GetEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			EnableTLS:    util.GetEnvBool("SERVER_ENABLE_TLS", false),
			CertFile:     util.GetEnv("SERVER_CERT_FILE", ""),
			KeyFile:      util.GetEnv("SERVER_KEY_FILE", ""),
		},
		Logging: LoggingConfig{
			Level:  util.GetEnv("LOG_LEVEL", "info"),
			Format: util.GetEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL:      util.GetEnv("REDIS_URL", "redis://localhost:6379"),
			Password: util.GetEnv("REDIS_PASSWORD", ""),
			DB:       util.GetEnvInt("REDIS_DB", 0),
			PoolSize: util.GetEnvInt("REDIS_POOL_SIZE", 50),
		},
		Kafka: KafkaConfig{
			Enabled:    util.GetEnvBool("KAFKA_ENABLED", false),
			Brokers:    util.GetEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			AuditTopic: util.GetEnv("KAFKA_AUDIT_TOPIC", "authz-audit-events"),
		},
		Token: TokenConfig{
			Secret:     secret,
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
			Issuer:     util.GetEnv("JWT_ISSUER", "authz-service"),
		},
		RateLimit: RateLimitConfig{
			FailOpen:     util.GetEnvBool("RATE_LIMIT_FAIL_OPEN", false),
			CheckTimeout: util.GetEnvDuration("RATE_LIMIT_CHECK_TIMEOUT", 5*time.Second),
			Buckets:      util.GetEnvInt("RATE_LIMIT_BUCKETS", 64),
			Rules:        rules,
		},
	}

	return cfg, nil
}

// loadWindowRules starts from the built-in quota table and applies
// per-window RATE_LIMIT_<WINDOW>_LIMIT / RATE_LIMIT_<WINDOW>_SECONDS
// overrides, e.g. RATE_LIMIT_PER_MINUTE_LIMIT=120.
func loadWindowRules() (ratelimit.Rules, error) {
	rules := ratelimit.DefaultRules()
	for window, rule := range rules {
		prefix := "RATE_LIMIT_" + strings.ToUpper(string(window))

		rule.Limit = util.GetEnvInt(prefix+"_LIMIT", rule.Limit)
		if seconds := util.GetEnvInt(prefix+"_SECONDS", 0); seconds > 0 {
			rule.Duration = time.Duration(seconds) * time.Second
		}
		if rule.Limit <= 0 {
			return nil, fmt.Errorf("%s_LIMIT must be positive", prefix)
		}
		rules[window] = rule
	}
	return rules, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
