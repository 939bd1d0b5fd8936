package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	base "github.com/openexch/exauth/libs/config"
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

type RateLimitRedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type RateLimitConfig struct {
	LoginLimit int
	ResetLimit int
	Window     time.Duration
	Redis      RateLimitRedisConfig
}

type JWTConfig struct {
	Secret           string
	Issuer           string
	TTL              time.Duration
	BaseScopes       []string
	AdminScopes      []string
	SupportScopes    []string
	SupervisorScopes []string
	KYCScopes        []string
	TechScopes       []string
	IPAllowlist      []string
}

type CaptchaConfig struct {
	Endpoint string
	Secret   string
}

type SystemKeyConfig struct {
	Key    string
	Secret string
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

type Config struct {
	App                 base.AppConfig
	JWT                 JWTConfig
	Argon2              Argon2Params
	DB                  DBConfig
	RateLimit           RateLimitConfig
	Captcha             CaptchaConfig
	SystemKey           SystemKeyConfig
	Kafka               KafkaConfig
	TOTPIssuer          string
	FrozenRefreshPeriod time.Duration
}

func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("EXAUTH_CONFIG"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: *appCfg,
		JWT: JWTConfig{
			Secret:           envString("EXAUTH_JWT_SECRET", ""),
			Issuer:           envString("EXAUTH_JWT_ISSUER", "exauth"),
			TTL:              envDuration("EXAUTH_TOKEN_TTL", 24*time.Hour),
			BaseScopes:       envStringSlice("EXAUTH_BASE_SCOPES", []string{"user"}),
			AdminScopes:      envStringSlice("EXAUTH_ADMIN_SCOPES", []string{"admin"}),
			SupportScopes:    envStringSlice("EXAUTH_SUPPORT_SCOPES", []string{"support"}),
			SupervisorScopes: envStringSlice("EXAUTH_SUPERVISOR_SCOPES", []string{"supervisor"}),
			KYCScopes:        envStringSlice("EXAUTH_KYC_SCOPES", []string{"kyc"}),
			TechScopes:       envStringSlice("EXAUTH_TECH_SCOPES", []string{"tech"}),
			IPAllowlist:      envStringSlice("EXAUTH_ADMIN_IP_ALLOWLIST", nil),
		},
		Argon2: Argon2Params{
			Memory:      uint32(envInt("EXAUTH_ARGON2_MEMORY", 64*1024)),
			Iterations:  uint32(envInt("EXAUTH_ARGON2_ITERATIONS", 3)),
			Parallelism: uint8(envInt("EXAUTH_ARGON2_PARALLELISM", 2)),
			SaltLength:  uint32(envInt("EXAUTH_ARGON2_SALT_LENGTH", 16)),
			KeyLength:   uint32(envInt("EXAUTH_ARGON2_KEY_LENGTH", 32)),
		},
		DB: DBConfig{
			Host:     envString("POSTGRES_HOST", "localhost"),
			Port:     envInt("POSTGRES_PORT", 5432),
			Name:     envString("POSTGRES_DB", "exauth"),
			User:     envString("POSTGRES_USER", "exauth"),
			Password: envString("POSTGRES_PASSWORD", "exauth"),
			SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		},
		RateLimit: RateLimitConfig{
			LoginLimit: envInt("EXAUTH_LOGIN_RATE_LIMIT", 10),
			ResetLimit: envInt("EXAUTH_RESET_RATE_LIMIT", 5),
			Window:     envDuration("EXAUTH_RATE_WINDOW", 1*time.Minute),
			Redis: RateLimitRedisConfig{
				Addr:     envString("EXAUTH_RATE_LIMIT_REDIS_ADDR", ""),
				Password: envString("EXAUTH_RATE_LIMIT_REDIS_PASSWORD", ""),
				DB:       envInt("EXAUTH_RATE_LIMIT_REDIS_DB", 0),
				Prefix:   envString("EXAUTH_RATE_LIMIT_REDIS_PREFIX", "exauth:rl:"),
			},
		},
		Captcha: CaptchaConfig{
			Endpoint: envString("EXAUTH_CAPTCHA_ENDPOINT", "https://www.google.com/recaptcha/api/siteverify"),
			Secret:   envString("EXAUTH_CAPTCHA_SECRET", ""),
		},
		SystemKey: SystemKeyConfig{
			Key:    envString("EXAUTH_SYSTEM_API_KEY", ""),
			Secret: envString("EXAUTH_SYSTEM_API_SECRET", ""),
		},
		Kafka: KafkaConfig{
			Brokers:    envStringSlice("EXAUTH_KAFKA_BROKERS", nil),
			AuditTopic: envString("EXAUTH_AUDIT_TOPIC", "exchange.audit"),
		},
		TOTPIssuer:          envString("EXAUTH_TOTP_ISSUER", "exauth"),
		FrozenRefreshPeriod: envDuration("EXAUTH_FROZEN_REFRESH_PERIOD", 30*time.Second),
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("EXAUTH_JWT_SECRET must be set")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envStringSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
