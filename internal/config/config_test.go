package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoad_FileAndDefaults(t *testing.T) {
	dir := writeConfig(t, `
port: "9090"
backend:
  base_url: "http://arduino.local/api/arduino/"
  timeouts:
    connect: 12s
refresh:
  interval: 2s
push:
  transport: MQTT
  mqtt:
    broker: tcp://localhost:1883
    prefix: /plant/
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port=%q", cfg.Port)
	}
	if cfg.Backend.BaseURL != "http://arduino.local/api/arduino" {
		t.Fatalf("base url not trimmed: %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeouts.Connect != 12*time.Second || cfg.Backend.Timeouts.Command != 5*time.Second {
		t.Fatalf("timeouts: %+v", cfg.Backend.Timeouts)
	}
	if !cfg.Refresh.Enabled || cfg.Refresh.Interval != 2*time.Second {
		t.Fatalf("refresh: %+v", cfg.Refresh)
	}
	if cfg.Push.Transport != "mqtt" || cfg.Push.MQTT.Prefix != "plant" || cfg.Push.MQTT.ClientID != "device-sync" {
		t.Fatalf("push: %+v", cfg.Push)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := writeConfig(t, "backend:\n  base_url: http://a\n")
	t.Setenv("DEVICE_SYNC_PORT", "7070")
	t.Setenv("DEVICE_SYNC_REFRESH_ENABLED", "false")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7070" || cfg.Refresh.Enabled {
		t.Fatalf("env not applied: port=%q refresh=%v", cfg.Port, cfg.Refresh.Enabled)
	}
	if cfg.Push.Transport != "none" {
		t.Fatalf("push should be off unless configured, got %q", cfg.Push.Transport)
	}
}

func TestLoad_Validation(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, errMissingBaseURL) {
		t.Fatalf("expected errMissingBaseURL, got %v", err)
	}

	dir := writeConfig(t, "backend:\n  base_url: http://a\npush:\n  transport: carrier-pigeon\n")
	if _, err := Load(dir); !errors.Is(err, errUnknownTransport) {
		t.Fatalf("expected errUnknownTransport, got %v", err)
	}

	dir = writeConfig(t, "backend:\n  base_url: http://a\npush:\n  transport: ws\n")
	if _, err := Load(dir); !errors.Is(err, errMissingPushURL) {
		t.Fatalf("expected errMissingPushURL, got %v", err)
	}

	dir = writeConfig(t, "backend:\n  base_url: http://a\npush:\n  transport: mqtt\n")
	if _, err := Load(dir); !errors.Is(err, errMissingBroker) {
		t.Fatalf("expected errMissingBroker, got %v", err)
	}

	dir = writeConfig(t, "backend:\n  base_url: http://a\npush:\n  transport: ws\n  url: ws://a/ws\n")
	if _, err := Load(dir); err != nil {
		t.Fatalf("ws with url should load, got %v", err)
	}
}
