package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ProviderConfig is one payment provider's inbound-webhook trust material.
type ProviderConfig struct {
	HMACSecret  string   `mapstructure:"hmac_secret"`
	BaseURL     string   `mapstructure:"base_url"`
	IPAllowlist []string `mapstructure:"ip_allowlist"`
}

// ProvidersConfig holds one ProviderConfig per supported provider.
type ProvidersConfig struct {
	JazzCash  ProviderConfig `mapstructure:"jazzcash"`
	EasyPaisa ProviderConfig `mapstructure:"easypaisa"`
	SadaPay   ProviderConfig `mapstructure:"sadapay"`
}

// RetryConfig shapes C5's exponential backoff schedule.
type RetryConfig struct {
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
	MaxRetries  int `mapstructure:"max_retries"`
}

// ReconcileConfig shapes the PENDING expiry sweep.
type ReconcileConfig struct {
	PendingExpiry time.Duration `mapstructure:"pending_expiry"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: GW_ (Gateway).
// Nested keys use underscore: GW_DATABASE_HOST, GW_PROVIDERS_JAZZCASH_HMAC_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "deposit_gateway")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	for _, p := range []string{"jazzcash", "easypaisa", "sadapay"} {
		v.SetDefault("providers."+p+".hmac_secret", "")
		v.SetDefault("providers."+p+".base_url", "")
		v.SetDefault("providers."+p+".ip_allowlist", []string{})
	}
	v.SetDefault("retry.base_delay_ms", 100)
	v.SetDefault("retry.max_delay_ms", 250)
	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("reconcile.pending_expiry", "15m")
	v.SetDefault("reconcile.sweep_interval", "5m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: GW_DATABASE_HOST -> database.host
	v.SetEnvPrefix("GW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyEasyPaisaAliases(&cfg)

	if err := cfg.validateProviders(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEasyPaisaAliases supports both GW_PROVIDERS_EASYPAISA_* and the
// legacy GW_PROVIDERS_EASY_PAISA_* spelling some ops runbooks still use.
// When both are set, the all-caps EASYPAISA spelling wins.
func applyEasyPaisaAliases(cfg *Config) {
	if v := os.Getenv("GW_PROVIDERS_EASY_PAISA_HMAC_SECRET"); v != "" && cfg.Providers.EasyPaisa.HMACSecret == "" {
		cfg.Providers.EasyPaisa.HMACSecret = v
	}
	if v := os.Getenv("GW_PROVIDERS_EASYPAISA_HMAC_SECRET"); v != "" {
		cfg.Providers.EasyPaisa.HMACSecret = v
	}
	if v := os.Getenv("GW_PROVIDERS_EASY_PAISA_BASE_URL"); v != "" && os.Getenv("GW_PROVIDERS_EASYPAISA_BASE_URL") == "" {
		cfg.Providers.EasyPaisa.BaseURL = v
	}
	if v := os.Getenv("GW_PROVIDERS_EASY_PAISA_IP_ALLOWLIST"); v != "" && os.Getenv("GW_PROVIDERS_EASYPAISA_IP_ALLOWLIST") == "" {
		cfg.Providers.EasyPaisa.IPAllowlist = strings.Split(v, ",")
	}
}

// validateProviders fails fast if any configured provider is missing its
// HMAC secret: an unusable provider must not silently accept deposits.
func (c Config) validateProviders() error {
	for name, p := range map[string]ProviderConfig{
		"jazzcash":  c.Providers.JazzCash,
		"easypaisa": c.Providers.EasyPaisa,
		"sadapay":   c.Providers.SadaPay,
	} {
		if p.HMACSecret == "" {
			return fmt.Errorf("provider %s: hmac_secret is required", name)
		}
	}
	return nil
}
