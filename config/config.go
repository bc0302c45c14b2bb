package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Issuer is the iss claim stamped into self-contained tokens.
	Issuer string `mapstructure:"ISSUER"`

	// ServiceClientID names the client whose access tokens are forced
	// opaque regardless of its configured format.
	ServiceClientID string `mapstructure:"SERVICE_CLIENT_ID"`

	SigningKeyTTLDays  int `mapstructure:"SIGNING_KEY_TTL_DAYS"`
	MachineTokenTTLSec int `mapstructure:"MACHINE_TOKEN_TTL_SEC"`
	ClientCacheTTLSec  int `mapstructure:"CLIENT_CACHE_TTL_SEC"`

	// PersistMachineGrants additionally writes machine grants to the
	// durable record store so validation survives a cache flush.
	PersistMachineGrants bool `mapstructure:"PERSIST_MACHINE_GRANTS"`
}

// SigningKeyTTL returns the key lifetime as a duration.
func (c *ServerConfig) SigningKeyTTL() time.Duration {
	return time.Duration(c.SigningKeyTTLDays) * 24 * time.Hour
}

// MachineTokenTTL returns the machine-token lifetime as a duration.
func (c *ServerConfig) MachineTokenTTL() time.Duration {
	return time.Duration(c.MachineTokenTTLSec) * time.Second
}

// ClientCacheTTL returns the registered-client cache lifetime.
func (c *ServerConfig) ClientCacheTTL() time.Duration {
	return time.Duration(c.ClientCacheTTLSec) * time.Second
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/iam/")
	v.AddConfigPath("$HOME/.iam")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/iam_dev")
	v.SetDefault("MONGO_DB_NAME", "iam_dev")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "iam-server")
	v.SetDefault("ISSUER", "http://localhost:8080")
	v.SetDefault("SERVICE_CLIENT_ID", "openapi")
	v.SetDefault("SIGNING_KEY_TTL_DAYS", 30)
	v.SetDefault("MACHINE_TOKEN_TTL_SEC", 3600)
	v.SetDefault("CLIENT_CACHE_TTL_SEC", 60)
	v.SetDefault("PERSIST_MACHINE_GRANTS", false)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects configurations the services would otherwise only reject
// per-request. Machine tokens have no per-client TTL source, so a
// non-positive lifetime here makes every issuance fail.
func (c *ServerConfig) validate() error {
	if c.SigningKeyTTLDays <= 0 {
		return fmt.Errorf("SIGNING_KEY_TTL_DAYS must be positive, got %d", c.SigningKeyTTLDays)
	}
	if c.MachineTokenTTLSec <= 0 {
		return fmt.Errorf("MACHINE_TOKEN_TTL_SEC must be positive, got %d", c.MachineTokenTTLSec)
	}
	if c.Issuer == "" {
		return fmt.Errorf("ISSUER must not be empty")
	}
	return nil
}
