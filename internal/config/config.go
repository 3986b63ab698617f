// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Life     LifeConfig     `mapstructure:"life"`
	Ads      AdsConfig      `mapstructure:"ads"`
	Warning  WarningConfig  `mapstructure:"warning"`
	AI       AIConfig       `mapstructure:"ai"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds the administrative override user list.
type AdminConfig struct {
	IDs []string `mapstructure:"ids"`
}

// LifeConfig holds the initial life balance granted to new users.
type LifeConfig struct {
	InitialCurrent int `mapstructure:"initial_current"`
	InitialMax     int `mapstructure:"initial_max"`
}

// AdsConfig holds reward-ad throttle ceilings.
type AdsConfig struct {
	MaxPerHour int `mapstructure:"max_per_hour"`
	MaxPerDay  int `mapstructure:"max_per_day"`
}

// WarningConfig holds the consent window for warning-gated readings.
type WarningConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// AIConfig holds narrative generation configuration.
type AIConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables override file values, e.g. DATABASE_HOST,
	// SERVER_ADDR, AI_API_KEY.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tarot")
	v.SetDefault("database.name", "tarot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("life.initial_current", 5)
	v.SetDefault("life.initial_max", 5)

	v.SetDefault("ads.max_per_hour", 5)
	v.SetDefault("ads.max_per_day", 20)

	v.SetDefault("warning.window", "5m")

	v.SetDefault("ai.model", "gpt-4o")
	v.SetDefault("ai.max_tokens", 800)
}

// IsPrivileged reports whether a user ID is in the admin override list.
// Admin users skip all entitlement checks but still record readings.
func (c *Config) IsPrivileged(userID string) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}
