// Package config provides configuration management for tvrecorder using
// Viper. It supports configuration from files, environment variables,
// and defaults, in the layered style the teacher's own config package
// uses.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 3000
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultDBMaxOpenConns  = 6
	defaultDBMaxIdleConns  = 3
	defaultEPGRefreshCron  = "@every 10m0s"
	defaultSweepCron       = "@every 1h0m0s"
	defaultStaleAfter      = 6 * time.Hour
	defaultPrerollWindow   = 10 * time.Minute
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Tuner       TunerConfig       `mapstructure:"tuner"`
	Index       IndexConfig       `mapstructure:"index"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Recording   RecordingConfig   `mapstructure:"recording"`
	EPGSync     EPGSyncConfig     `mapstructure:"epgsync"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig holds the administration HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// TunerConfig points at the upstream tuner service.
type TunerConfig struct {
	BaseURI string `mapstructure:"base_uri"`
}

// IndexConfig points at the external search index (Meilisearch).
type IndexConfig struct {
	BaseURI   string `mapstructure:"base_uri"`
	MasterKey string `mapstructure:"master_key"`
}

// CatalogConfig holds the local SQLite catalog mirror configuration.
type CatalogConfig struct {
	DSN          string `mapstructure:"dsn"`
	LogLevel     string `mapstructure:"log_level"` // silent, error, warn, info
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// StorageConfig holds the recording output sandbox location.
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// RecordingConfig holds Writer/Pool tuning. PrerollWindow is loaded and
// shown by "config dump" only; the Scheduler's pre-roll window is a fixed
// 10 minutes and does not read it.
type RecordingConfig struct {
	FilterPath     string        `mapstructure:"filter_path"`
	PrerollWindow  time.Duration `mapstructure:"preroll_window"`
	DescriptorFile string        `mapstructure:"descriptor_file"`
}

// EPGSyncConfig holds the EPG Synchroniser's periodic refresh cadence.
type EPGSyncConfig struct {
	RefreshCron string `mapstructure:"refresh_cron"`
}

// MaintenanceConfig holds the orphan-sweep cadence and staleness window.
// StaleAfter accepts the human-readable day/week units Duration adds on
// top of Go's standard format (e.g. "1d"), since operators tend to think
// of this window in days rather than hours.
type MaintenanceConfig struct {
	SweepCron  string   `mapstructure:"sweep_cron"`
	StaleAfter Duration `mapstructure:"stale_after"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with TVREC_, using underscores for nesting. Example:
// TVREC_SERVER_PORT=3000.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tvrecorder")
		v.AddConfigPath("$HOME/.tvrecorder")
	}

	v.SetEnvPrefix("TVREC")
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
// This should be called before reading the config file to ensure
// defaults are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("tuner.base_uri", "http://127.0.0.1:40772")

	v.SetDefault("index.base_uri", "http://127.0.0.1:7700")
	v.SetDefault("index.master_key", "")

	v.SetDefault("catalog.dsn", "./data/catalog.db")
	v.SetDefault("catalog.log_level", "warn")
	v.SetDefault("catalog.max_open_conns", defaultDBMaxOpenConns)
	v.SetDefault("catalog.max_idle_conns", defaultDBMaxIdleConns)

	v.SetDefault("storage.base_dir", "./data/recordings")

	v.SetDefault("recording.filter_path", "")
	v.SetDefault("recording.preroll_window", defaultPrerollWindow)
	v.SetDefault("recording.descriptor_file", "./data/q_recording.json")

	v.SetDefault("epgsync.refresh_cron", defaultEPGRefreshCron)

	v.SetDefault("maintenance.sweep_cron", defaultSweepCron)
	v.SetDefault("maintenance.stale_after", defaultStaleAfter)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Tuner.BaseURI == "" {
		return fmt.Errorf("tuner.base_uri is required")
	}
	if c.Index.BaseURI == "" {
		return fmt.Errorf("index.base_uri is required")
	}
	if c.Catalog.DSN == "" {
		return fmt.Errorf("catalog.dsn is required")
	}
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
