// Package config loads client and dev-server settings from an optional
// YAML file and SHAREDLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sharedledger.org/internal/access"
)

const EnvPrefix = "SHAREDLEDGER"

var ErrMissingAPIURL = errors.New("config: api_url is required")

// Config holds the client configuration.
type Config struct {
	APIURL          string  `mapstructure:"api_url"`
	LoginPath       string  `mapstructure:"login_path"`
	CredentialsFile string  `mapstructure:"credentials_file"`
	BearerToken     string  `mapstructure:"bearer_token"`
	RatePerSecond   float64 `mapstructure:"rate_per_second"`
	RateBurst       int     `mapstructure:"rate_burst"`
	LogLevel        string  `mapstructure:"log_level"`

	DevServer DevServer `mapstructure:"devserver"`
}

// DevServer configures the in-memory backend.
type DevServer struct {
	Addr       string        `mapstructure:"addr"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	Seed       bool          `mapstructure:"seed"`
}

// New returns a viper instance with defaults, env binding and, when path is
// set, the config file attached.
func New(path string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_url", "")
	v.SetDefault("login_path", access.DefaultLoginPath)
	v.SetDefault("credentials_file", "")
	v.SetDefault("bearer_token", "")
	v.SetDefault("rate_per_second", 20)
	v.SetDefault("rate_burst", 40)
	v.SetDefault("log_level", "info")
	v.SetDefault("devserver.addr", ":8080")
	v.SetDefault("devserver.jwt_secret", "")
	v.SetDefault("devserver.session_ttl", "12h")
	v.SetDefault("devserver.seed", true)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sharedledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sharedledger")
	}
	return v
}

// Load reads the config file if one exists and decodes the settings.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

// ValidateClient checks the settings the client needs.
func (c *Config) ValidateClient() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return ErrMissingAPIURL
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		return fmt.Errorf("config: login_path %q must start with /", c.LoginPath)
	}
	return nil
}
