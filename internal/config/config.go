// Package config loads the daemon's TOML configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/loykin/inspectr/internal/logger"
	"github.com/spf13/viper"
)

// Defaults applied by Load for unset fields.
const (
	DefaultBasePort      = 9229
	DefaultNodeBin       = "node"
	DefaultAttachTimeout = 5 * time.Second
	DefaultListen        = "127.0.0.1:8080"
	DefaultBasePath      = "/debug"
	DefaultMetricsListen = "127.0.0.1:9464"
)

// ServerConfig configures the optional HTTP status API.
type ServerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// HistoryConfig configures debug history sinks. An empty value disables the
// corresponding sink.
type HistoryConfig struct {
	SQLDSN          string `toml:"sql_dsn" mapstructure:"sql_dsn"`
	ClickHouseURL   string `toml:"clickhouse_url" mapstructure:"clickhouse_url"`
	ClickHouseTable string `toml:"clickhouse_table" mapstructure:"clickhouse_table"`
}

// Config is the top-level TOML structure.
type Config struct {
	BasePort      int                 `toml:"base_port" mapstructure:"base_port"`
	NodeBin       string              `toml:"node_bin" mapstructure:"node_bin"`
	AttachTimeout time.Duration       `toml:"attach_timeout" mapstructure:"attach_timeout"`
	Log           logger.DaemonConfig `toml:"log" mapstructure:"log"`
	DebuggeeLog   logger.Config       `toml:"debuggee_log" mapstructure:"debuggee_log"`
	Server        ServerConfig        `toml:"server" mapstructure:"server"`
	Metrics       MetricsConfig       `toml:"metrics" mapstructure:"metrics"`
	History       HistoryConfig       `toml:"history" mapstructure:"history"`
}

// Default returns a config with every default filled in.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads a TOML config file and fills defaults. An empty path yields the
// default configuration.
func Load(path string) (Config, error) {
	var c Config
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(&c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.BasePort == 0 {
		c.BasePort = DefaultBasePort
	}
	if c.NodeBin == "" {
		c.NodeBin = DefaultNodeBin
	}
	if c.AttachTimeout <= 0 {
		c.AttachTimeout = DefaultAttachTimeout
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = DefaultBasePath
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
	if c.History.ClickHouseTable == "" {
		c.History.ClickHouseTable = "debug_history"
	}
}

func (c *Config) validate() error {
	if c.BasePort < 1 || c.BasePort > 65535 {
		return fmt.Errorf("base_port %d out of range", c.BasePort)
	}
	return nil
}
