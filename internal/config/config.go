package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port         string `mapstructure:"PORT"`
	Env          string `mapstructure:"ENV"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DBMaxConns   int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns   int32  `mapstructure:"DB_MIN_CONNS"`
	DBSchema     string `mapstructure:"DB_SCHEMA"`
	StoreBackend string `mapstructure:"STORE_BACKEND"`

	StoreRESTURL     string `mapstructure:"STORE_REST_URL"`
	StoreRESTToken   string `mapstructure:"STORE_REST_TOKEN"`
	StoreRESTRetries int    `mapstructure:"STORE_REST_RETRIES"`

	RedisURL string        `mapstructure:"REDIS_URL"`
	CacheTTL time.Duration `mapstructure:"CACHE_TTL"`

	AuthSigningKey    string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthPublicKeyFile string `mapstructure:"AUTH_PUBLIC_KEY_FILE"`
	AuthIssuer        string `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string `mapstructure:"AUTH_AUDIENCE"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	PhoneCountryCode     string `mapstructure:"PHONE_COUNTRY_CODE"`
	Timezone             string `mapstructure:"TIMEZONE"`
	BranchID             string `mapstructure:"BRANCH_ID"`
	ReceptionDeepLink    string `mapstructure:"RECEPTION_DEEP_LINK"`
	ReceptionEmailDomain string `mapstructure:"RECEPTION_EMAIL_DOMAIN"`

	PushGatewayURL   string        `mapstructure:"PUSH_GATEWAY_URL"`
	PushServerKey    string        `mapstructure:"PUSH_SERVER_KEY"`
	ReminderInterval time.Duration `mapstructure:"REMINDER_INTERVAL"`
	TriggersAsync    bool          `mapstructure:"TRIGGERS_ASYNC"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA", "STORE_BACKEND",
	"STORE_REST_URL", "STORE_REST_TOKEN", "STORE_REST_RETRIES",
	"REDIS_URL", "CACHE_TTL",
	"AUTH_SIGNING_KEY", "AUTH_PUBLIC_KEY_FILE", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"PHONE_COUNTRY_CODE", "TIMEZONE", "BRANCH_ID", "RECEPTION_DEEP_LINK", "RECEPTION_EMAIL_DOMAIN",
	"PUSH_GATEWAY_URL", "PUSH_SERVER_KEY", "REMINDER_INTERVAL", "TRIGGERS_ASYNC",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("STORE_BACKEND", StorePostgres)
	v.SetDefault("STORE_REST_RETRIES", 2)
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:8081")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("PHONE_COUNTRY_CODE", "+91")
	v.SetDefault("TIMEZONE", "Asia/Kolkata")
	v.SetDefault("BRANCH_ID", "main")
	v.SetDefault("RECEPTION_DEEP_LINK", "main://quick-checkin")
	v.SetDefault("RECEPTION_EMAIL_DOMAIN", "reception.example.com")
	v.SetDefault("REMINDER_INTERVAL", "72h")
	v.SetDefault("TRIGGERS_ASYNC", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.StoreBackend == StorePostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %q", StorePostgres)
	}

	if cfg.IsDev() {
		log.Println("WARNING: ENV=development, requests without a bearer token run as an admin dev session.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location resolves TIMEZONE, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks that the configuration is safe to run. Outside development a
// token verification key must be configured.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StorePostgres, StoreMemory, c.StoreBackend)
	}
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthPublicKeyFile == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_PUBLIC_KEY_FILE is required when ENV=%q", c.Env)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	if !strings.HasPrefix(c.PhoneCountryCode, "+") {
		return fmt.Errorf("PHONE_COUNTRY_CODE must start with '+', got %q", c.PhoneCountryCode)
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive, got %s", c.ReminderInterval)
	}
	return nil
}
