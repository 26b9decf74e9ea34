package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mil-ad/audioswitch/internal/bluetooth"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Adapter != "hci0" || cfg.Preference != "most-recent" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.PollInterval != bluetooth.DefaultPollInterval || cfg.RoutingTimeout != bluetooth.DefaultTimeout {
		t.Fatalf("unexpected job defaults: %s %s", cfg.PollInterval, cfg.RoutingTimeout)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`adapter: hci1
poll_interval: 250ms
routing_timeout: 3s
preference: first-connected
devices:
  - AA:BB:CC:DD:EE:FF
metrics_addr: 127.0.0.1:9108
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Adapter != "hci1" || cfg.PollInterval != 250*time.Millisecond || cfg.RoutingTimeout != 3*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0] != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("unexpected devices: %v", cfg.Devices)
	}
	if cfg.preference() == nil || cfg.MetricsAddr != "127.0.0.1:9108" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("AUDIOSWITCH_LOG_LEVEL", "debug")
	t.Setenv("AUDIOSWITCH_ADAPTER", "hci2")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Adapter != "hci2" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"preference": "preference: loudest\n",
		"interval":   "poll_interval: 10s\nrouting_timeout: 1s\n",
		"log level":  "log_level: chatty\n",
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := loadConfig(path); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}
