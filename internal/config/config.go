// Package config loads gosignature settings from gosignature.yaml, the
// environment (GOSIGNATURE_*) and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/olehluchkiv/gosignature/internal/logging"
	"github.com/olehluchkiv/gosignature/pkg/cache"
	"github.com/olehluchkiv/gosignature/pkg/signature"
)

// EnvPrefix prefixes every environment override, e.g. GOSIGNATURE_CACHE_TTL.
const EnvPrefix = "GOSIGNATURE"

// Provider names.
const (
	ProviderPackages = "packages"
	ProviderSchema   = "schema"
)

// Config is the complete gosignature configuration.
type Config struct {
	Log               LogConfig    `mapstructure:"log"`
	Provider          string       `mapstructure:"provider"`
	Schema            string       `mapstructure:"schema"`
	Filter            string       `mapstructure:"filter"`
	IncludeStdlib     bool         `mapstructure:"include_stdlib"`
	IncludeUnexported bool         `mapstructure:"include_unexported"`
	UntypedProperties string       `mapstructure:"untyped_properties"`
	Cache             CacheConfig  `mapstructure:"cache"`
	Server            ServerConfig `mapstructure:"server"`
}

// LogConfig configures logging.Setup.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// CacheConfig selects the shared cache tier. Redis wins when both Redis
// and SQL are configured; with neither the cache is process-local.
type CacheConfig struct {
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
	SQL   SQLConfig     `mapstructure:"sql"`
}

// RedisConfig configures the Redis tier.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SQLConfig configures the database/sql tier.
type SQLConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// New returns a viper instance with defaults and environment overrides set.
// Callers bind flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/gosignature.log")
	v.SetDefault("provider", ProviderPackages)
	v.SetDefault("schema", "")
	v.SetDefault("filter", "")
	v.SetDefault("include_stdlib", false)
	v.SetDefault("include_unexported", false)
	v.SetDefault("untyped_properties", "reject")
	v.SetDefault("cache.ttl", time.Duration(0))
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "gosignature:")
	v.SetDefault("cache.sql.driver", "")
	v.SetDefault("cache.sql.dsn", "")
	v.SetDefault("cache.sql.table", cache.DefaultTable)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads file, or gosignature.yaml from the working directory when file
// is empty, and validates the result. A missing default file is not an
// error; a missing explicit file is.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("gosignature")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := c.UntypedPolicy(); err != nil {
		return fmt.Errorf("untyped_properties: %w", err)
	}

	switch c.Provider {
	case ProviderPackages:
	case ProviderSchema:
		if c.Schema == "" {
			return fmt.Errorf("provider %q requires schema to be set", ProviderSchema)
		}
	default:
		return fmt.Errorf("unknown provider %q (valid: %s, %s)", c.Provider, ProviderPackages, ProviderSchema)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %s", c.Cache.TTL)
	}
	if c.Cache.SQL.Driver != "" {
		if _, err := cache.DialectFor(c.Cache.SQL.Driver); err != nil {
			return fmt.Errorf("cache.sql.driver: %w", err)
		}
		if c.Cache.SQL.DSN == "" {
			return fmt.Errorf("cache.sql.dsn is required with driver %q", c.Cache.SQL.Driver)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

// UntypedPolicy returns the configured untyped property policy.
func (c *Config) UntypedPolicy() (signature.UntypedPropertyPolicy, error) {
	return signature.ParseUntypedPropertyPolicy(c.UntypedProperties)
}

// RedisStoreConfig converts the Redis section for cache.NewRedisStore.
func (c CacheConfig) RedisStoreConfig() cache.RedisConfig {
	rc := cache.DefaultRedisConfig()
	rc.Addr = c.Redis.Addr
	rc.Password = c.Redis.Password
	rc.DB = c.Redis.DB
	rc.Prefix = c.Redis.Prefix
	return rc
}
