// Package config loads the service configuration: an optional YAML file
// with environment variables layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"kuwaiba/osp-core/internal/treelayout"
)

type Config struct {
	HTTPAddr    string         `yaml:"http_addr"`
	LogLevel    string         `yaml:"log_level"`
	DatabaseURL string         `yaml:"database_url,omitempty"`
	SeedPath    string         `yaml:"seed_path,omitempty"`
	Layout      LayoutConfig   `yaml:"layout"`
	Sessions    SessionConfig  `yaml:"sessions"`
	PortSync    PortSyncConfig `yaml:"port_sync"`
}

// LayoutConfig holds the tree geometry constants, in pixels.
type LayoutConfig struct {
	BaseIndent float64 `yaml:"base_indent"`
	IndentUnit float64 `yaml:"indent_unit"`
	Spacing    float64 `yaml:"spacing"`
	RowHeight  float64 `yaml:"row_height"`
	Width      float64 `yaml:"width"`
	LabelLimit int     `yaml:"label_limit"`
}

type SessionConfig struct {
	IdleTimeout   Duration `yaml:"idle_timeout"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// PortSyncConfig controls reading port inventories from devices over SNMP.
type PortSyncConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Community string   `yaml:"community"`
	Version   string   `yaml:"version"`
	Port      uint16   `yaml:"port"`
	Timeout   Duration `yaml:"timeout"`
	Retries   int      `yaml:"retries"`
}

// Duration wraps time.Duration for YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path, or returns the defaults when path is empty.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8082"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	def := treelayout.DefaultOptions()
	if c.Layout.BaseIndent <= 0 {
		c.Layout.BaseIndent = def.BaseIndent
	}
	if c.Layout.IndentUnit <= 0 {
		c.Layout.IndentUnit = def.IndentUnit
	}
	if c.Layout.Spacing < 0 {
		c.Layout.Spacing = def.Spacing
	}
	if c.Layout.RowHeight <= 0 {
		c.Layout.RowHeight = def.RowHeight
	}
	if c.Layout.Width <= 0 {
		c.Layout.Width = def.Width
	}
	if c.Layout.LabelLimit <= 0 {
		c.Layout.LabelLimit = def.LabelLimit
	}

	if c.Sessions.IdleTimeout <= 0 {
		c.Sessions.IdleTimeout = Duration(30 * time.Minute)
	}
	if c.Sessions.SweepInterval <= 0 {
		c.Sessions.SweepInterval = Duration(time.Minute)
	}

	if c.PortSync.Community == "" {
		c.PortSync.Community = "public"
	}
	if c.PortSync.Version == "" {
		c.PortSync.Version = "2c"
	}
	if c.PortSync.Port == 0 {
		c.PortSync.Port = 161
	}
	if c.PortSync.Timeout <= 0 {
		c.PortSync.Timeout = Duration(2 * time.Second)
	}
	if c.PortSync.Retries < 0 {
		c.PortSync.Retries = 0
	}
}

// ApplyEnv overrides file values with the environment. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.HTTPAddr, "HTTP_ADDR")
	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.DatabaseURL, "DATABASE_URL")
	set(&c.SeedPath, "OSP_SEED")
	set(&c.PortSync.Community, "OSP_SNMP_COMMUNITY")

	if v := strings.TrimSpace(getenv("OSP_SNMP_ENABLED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OSP_SNMP_ENABLED: %w", err)
		}
		c.PortSync.Enabled = b
	}
	if v := strings.TrimSpace(getenv("OSP_SESSION_IDLE_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("OSP_SESSION_IDLE_TIMEOUT: %w", err)
		}
		c.Sessions.IdleTimeout = Duration(d)
	}
	return nil
}

func (l LayoutConfig) Options() treelayout.Options {
	return treelayout.Options{
		BaseIndent: l.BaseIndent,
		IndentUnit: l.IndentUnit,
		Spacing:    l.Spacing,
		RowHeight:  l.RowHeight,
		Width:      l.Width,
		LabelLimit: l.LabelLimit,
	}
}
