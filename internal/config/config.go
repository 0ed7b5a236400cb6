// Package config provides configuration management for fragindex using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

const (
	defaultServerPort      = 8089
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxFragments    = 1_000_000
	defaultMaxScanTime     = time.Minute
	defaultFallback        = 2 * time.Second
	defaultCacheSize       = 256
	maxPort                = 65535
)

// Config holds all application configuration.
type Config struct {
	Scan    ScanConfig    `mapstructure:"scan"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Store   StoreConfig   `mapstructure:"store"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ScanConfig bounds the work done for a single file.
type ScanConfig struct {
	MaxFragments     int           `mapstructure:"max_fragments"`
	MaxScanTime      time.Duration `mapstructure:"max_scan_time"`
	FallbackDuration time.Duration `mapstructure:"fallback_duration"`
	// Sizes accept human readable values such as "16MiB".
	MaxMoovSize string `mapstructure:"max_moov_size"`
	MaxMoofSize string `mapstructure:"max_moof_size"`
}

// CacheConfig holds in-memory index cache settings.
type CacheConfig struct {
	Size int `mapstructure:"size"`
}

// StoreConfig holds persistent index store settings.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MediaRoot       string        `mapstructure:"media_root"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

// Load reads configuration from file and environment variables.
// Environment variables are prefixed with FRAGINDEX_ and use underscores for
// nesting, e.g. FRAGINDEX_SCAN_MAX_FRAGMENTS=5000.
func Load(configPath string) (*Config, error) {
	return LoadWithViper(viper.New(), configPath)
}

// LoadWithViper is Load on a caller supplied instance, so command line flags
// bound to v take precedence over the file and environment.
func LoadWithViper(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("fragindex")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/fragindex")
		v.AddConfigPath("/etc/fragindex")
	}

	v.SetEnvPrefix("FRAGINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
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

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("scan.max_fragments", defaultMaxFragments)
	v.SetDefault("scan.max_scan_time", defaultMaxScanTime)
	v.SetDefault("scan.fallback_duration", defaultFallback)
	v.SetDefault("scan.max_moov_size", "16MiB")
	v.SetDefault("scan.max_moof_size", "16MiB")

	v.SetDefault("cache.size", defaultCacheSize)

	v.SetDefault("store.enabled", false)
	v.SetDefault("store.dsn", "fragindex.db")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.media_root", ".")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.add_source", false)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Scan.MaxFragments < 1 {
		return fmt.Errorf("scan.max_fragments must be at least 1")
	}
	if c.Scan.MaxScanTime < 0 {
		return fmt.Errorf("scan.max_scan_time must not be negative")
	}
	if c.Scan.FallbackDuration < time.Microsecond {
		return fmt.Errorf("scan.fallback_duration must be at least 1us")
	}
	if _, err := parseSize(c.Scan.MaxMoovSize); err != nil {
		return fmt.Errorf("scan.max_moov_size: %w", err)
	}
	if _, err := parseSize(c.Scan.MaxMoofSize); err != nil {
		return fmt.Errorf("scan.max_moof_size: %w", err)
	}

	if c.Cache.Size < 1 {
		return fmt.Errorf("cache.size must be at least 1")
	}

	if c.Store.Enabled && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required when the store is enabled")
	}

	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}
	if c.Server.MediaRoot == "" {
		return fmt.Errorf("server.media_root is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json, text")
	}

	return nil
}

// MaxMoovBytes returns scan.max_moov_size in bytes. Validate must have
// succeeded.
func (c *ScanConfig) MaxMoovBytes() int64 {
	size, _ := parseSize(c.MaxMoovSize)
	return size
}

// MaxMoofBytes returns scan.max_moof_size in bytes. Validate must have
// succeeded.
func (c *ScanConfig) MaxMoofBytes() int64 {
	size, _ := parseSize(c.MaxMoofSize)
	return size
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func parseSize(value string) (int64, error) {
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, err
	}
	if size == 0 || size > 1<<40 {
		return 0, fmt.Errorf("size %q out of range", value)
	}
	return int64(size), nil
}
