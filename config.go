package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/mil-ad/audioswitch/internal/bluetooth"
	"github.com/mil-ad/audioswitch/internal/bluez"
)

// Config is the daemon and client configuration.
type Config struct {
	Adapter        string        `mapstructure:"adapter"`
	Socket         string        `mapstructure:"socket"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RoutingTimeout time.Duration `mapstructure:"routing_timeout"`
	Preference     string        `mapstructure:"preference"`
	Devices        []string      `mapstructure:"devices"` // address allowlist, empty allows all
	LogLevel       string        `mapstructure:"log_level"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	FocusName      string        `mapstructure:"focus_name"`
}

func configPath() string {
	if p := os.Getenv("AUDIOSWITCH_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "audioswitch", "config.yaml")
}

func socketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, "audioswitch.sock")
}

// loadConfig reads path if it exists and applies AUDIOSWITCH_* environment
// overrides on top of the defaults.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AUDIOSWITCH")
	v.AutomaticEnv()

	v.SetDefault("adapter", "hci0")
	v.SetDefault("socket", socketPath())
	v.SetDefault("poll_interval", bluetooth.DefaultPollInterval)
	v.SetDefault("routing_timeout", bluetooth.DefaultTimeout)
	v.SetDefault("preference", "most-recent")
	v.SetDefault("devices", []string{})
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("focus_name", bluez.DefaultFocusName)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := bluetooth.ParsePreference(c.Preference); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.PollInterval <= 0 || c.RoutingTimeout <= 0 {
		return fmt.Errorf("config: poll_interval and routing_timeout must be positive")
	}
	if c.PollInterval > c.RoutingTimeout {
		return fmt.Errorf("config: poll_interval %s exceeds routing_timeout %s", c.PollInterval, c.RoutingTimeout)
	}
	if _, err := c.level(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) level() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(c.LogLevel))
	return lvl, err
}

func (c *Config) preference() bluetooth.Preference {
	p, err := bluetooth.ParsePreference(c.Preference)
	if err != nil {
		return bluetooth.MostRecent
	}
	return p
}
