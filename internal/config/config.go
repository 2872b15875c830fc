// Package config loads service configuration from the environment and an
// optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port       string `mapstructure:"PORT"`
	DBAdapter  string `mapstructure:"DB_ADAPTER"`
	SQLiteFile string `mapstructure:"SQLITE_FILE"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	LogFormat  string `mapstructure:"LOG_FORMAT"`
	Env        string `mapstructure:"APP_ENV"`

	// JwtSecret signs access tokens with HMAC-SHA256.
	JwtSecret string `mapstructure:"JWT_SECRET"`
	// JwtExpiryTimeFrame is the access token lifetime, e.g. "1m" or "15m".
	JwtExpiryTimeFrame string `mapstructure:"JWT_EXPIRY_TIME_FRAME"`
	BcryptCost         int    `mapstructure:"BCRYPT_COST"`
	DefaultRole        string `mapstructure:"DEFAULT_ROLE"`
	SeedRoles          string `mapstructure:"SEED_ROLES"`

	// PostgreSQL connection settings
	PostgresDSN      string `mapstructure:"POSTGRES_DSN"`
	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`
	PostgresSSLMode  string `mapstructure:"POSTGRES_SSLMODE"`

	// Redis backs the access token denylist. Empty address keeps it in memory.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	RateLimitPerMinute int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}
	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)
	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}
	return dsn, nil
}

// AccessTokenLifetime parses JwtExpiryTimeFrame.
func (c *Config) AccessTokenLifetime() (time.Duration, error) {
	d, err := time.ParseDuration(c.JwtExpiryTimeFrame)
	if err != nil {
		return 0, fmt.Errorf("invalid JWT_EXPIRY_TIME_FRAME %q: %w", c.JwtExpiryTimeFrame, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("JWT_EXPIRY_TIME_FRAME must be positive, got %s", d)
	}
	return d, nil
}

// Roles returns the seed roles as a trimmed list.
func (c *Config) Roles() []string {
	return splitList(c.SeedRoles)
}

// AllowedOrigins returns the CORS origins as a trimmed list.
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_ADAPTER", "sqlite")
	v.SetDefault("SQLITE_FILE", "./data/healthtracker.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("JWT_EXPIRY_TIME_FRAME", "1m")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("DEFAULT_ROLE", "Admin")
	v.SetDefault("SEED_ROLES", "Admin")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "health")
	v.SetDefault("POSTGRES_PASSWORD", "healthpass")
	v.SetDefault("POSTGRES_DB", "healthtracker")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
}

// New reads .env (if present), then the environment, and validates the result.
// Environment variables override values from .env.
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()
	setDefaults(v)

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.DBAdapter {
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	case "sqlite":
		if strings.TrimSpace(c.SQLiteFile) == "" {
			return errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	if c.JwtSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.IsProduction() && c.JwtSecret == "change-me" {
		return errors.New("JWT_SECRET must be set in production")
	}
	if _, err := c.AccessTokenLifetime(); err != nil {
		return err
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimitPerMinute)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT: %s", c.Port)
	}
	return nil
}
