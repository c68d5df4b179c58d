// Package config loads kv-server's configuration the way the teacher
// cache server does: layered defaults, config file, environment
// variables, and command-line flags via spf13/viper, unmarshaled into
// a typed Config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting kv-server needs to start.
type Config struct {
	// Listener
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// TLS identity
	CertFile          string `mapstructure:"cert_file"`
	KeyFile           string `mapstructure:"key_file"`
	ClientCAFile      string `mapstructure:"client_ca_file"`
	RequireClientAuth bool   `mapstructure:"require_client_auth"`

	// Client-side settings; loaded here but not read by kv-server itself
	ServerName   string `mapstructure:"server_name"`
	ServerCAFile string `mapstructure:"server_ca_file"`

	// Connection handling
	MaxClients   int           `mapstructure:"max_clients"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// DefaultConfig returns a Config with sane defaults, mirroring the
// teacher's DefaultConfig.
func DefaultConfig() *Config {
	return &Config{
		Host:              "localhost",
		Port:              4343,
		RequireClientAuth: false,
		MaxClients:        10000,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		LogLevel:          "info",
	}
}

// Load reads configuration from environment variables (prefix KV_), an
// optional kv.yaml config file, and command-line flags already bound to
// viper by the CLI layer.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("kv")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/kv-server/")
	viper.AddConfigPath("$HOME/.kv-server")

	viper.SetEnvPrefix("KV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("require_client_auth", cfg.RequireClientAuth)
	viper.SetDefault("max_clients", cfg.MaxClients)
	viper.SetDefault("read_timeout", cfg.ReadTimeout)
	viper.SetDefault("write_timeout", cfg.WriteTimeout)
	viper.SetDefault("log_level", cfg.LogLevel)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	return cfg, nil
}

// Validate reports whether cfg is usable to start a server.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.MaxClients < 1 {
		return fmt.Errorf("config: max_clients must be at least 1")
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return fmt.Errorf("config: cert_file and key_file are required to serve TLS")
	}

	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal"}
	valid := false
	for _, l := range validLevels {
		if c.LogLevel == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("config: invalid log_level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLevels, ", "))
	}

	return nil
}

// Address formats the host/port pair the listener binds.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) String() string {
	return fmt.Sprintf("kv-server config: %s, max_clients=%d, log_level=%s", c.Address(), c.MaxClients, c.LogLevel)
}
