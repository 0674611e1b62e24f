// Package config loads gateway configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Authz   AuthzConfig   `mapstructure:"authz"`
	WS      WSConfig      `mapstructure:"ws"`
	Store   StoreConfig   `mapstructure:"store"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	Issuer        string `mapstructure:"issuer"`
	Audience      string `mapstructure:"audience"`
}

type AuthzConfig struct {
	// MembershipTimeout bounds each membership lookup during subscribe
	// authorization. Zero leaves the lookup unbounded.
	MembershipTimeout time.Duration `mapstructure:"membership_timeout"`
}

type WSConfig struct {
	SendBuffer     int     `mapstructure:"send_buffer"`
	MaxMessageSize int64   `mapstructure:"max_message_size"`
	PublishRate    float64 `mapstructure:"publish_rate"`
	PublishBurst   int     `mapstructure:"publish_burst"`
}

type StoreConfig struct {
	// PostgresURL selects the postgres store; empty runs in-memory.
	PostgresURL string `mapstructure:"postgres_url"`
}

type RedisConfig struct {
	// URL enables the Redis fan-out bridge; empty keeps fan-out
	// in-process only.
	URL           string `mapstructure:"url"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("auth.issuer", "hearthbeat")
	v.SetDefault("auth.audience", "hearthbeat-clients")
	// Default 0 keeps the historical unbounded lookup; operators opt in
	// to a bound explicitly.
	v.SetDefault("authz.membership_timeout", time.Duration(0))
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.max_message_size", int64(64*1024))
	v.SetDefault("ws.publish_rate", 10.0)
	v.SetDefault("ws.publish_burst", 20)
	v.SetDefault("redis.channel_prefix", "hearthbeat:")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("HEARTHBEAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("auth.jwt_signing_key", "HEARTHBEAT_JWT_SIGNING_KEY")
	_ = v.BindEnv("store.postgres_url", "HEARTHBEAT_POSTGRES_URL")
	_ = v.BindEnv("redis.url", "HEARTHBEAT_REDIS_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSigningKey == "" {
		return fmt.Errorf("auth.jwt_signing_key is required (set HEARTHBEAT_JWT_SIGNING_KEY env var)")
	}
	if c.WS.SendBuffer < 1 {
		return fmt.Errorf("ws.send_buffer must be >= 1")
	}
	if c.WS.MaxMessageSize < 1024 {
		return fmt.Errorf("ws.max_message_size must be >= 1024")
	}
	if c.Authz.MembershipTimeout < 0 {
		return fmt.Errorf("authz.membership_timeout must not be negative")
	}
	return nil
}
