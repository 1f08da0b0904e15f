// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMonitorConfig_ExampleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ai-monitor.yaml")
	contents := `
port: 6000
max_clients: 2
recv_buf_size: 2048
enable_broadcast: true
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := LoadMonitorConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 6000 {
		t.Errorf("port = %d, want 6000", cfg.Port)
	}
	if cfg.MaxClients != 2 {
		t.Errorf("max_clients = %d, want 2", cfg.MaxClients)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoadMonitorConfig_FileNotFound(t *testing.T) {
	if _, err := LoadMonitorConfig("/nonexistent/path.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadMonitorConfig_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("port: [this is not valid"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := LoadMonitorConfig(path); err == nil {
		t.Fatal("expected an error for invalid YAML")
	}
}

func TestValidate_ClampsMaxClientsToCeiling(t *testing.T) {
	cfg := MonitorConfig{Port: 1234, MaxClients: 99}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxClients != 3 {
		t.Errorf("max_clients = %d, want clamped to 3", cfg.MaxClients)
	}
}

func TestValidate_ClampsMaxClientsToFloor(t *testing.T) {
	cfg := MonitorConfig{Port: 1234, MaxClients: -5}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxClients != 1 {
		t.Errorf("max_clients = %d, want clamped to 1", cfg.MaxClients)
	}
}

func TestValidate_FillsDefaultsForZeroValues(t *testing.T) {
	cfg := MonitorConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("port = %d, want default %d", cfg.Port, DefaultPort)
	}
	if cfg.RecvBufSize <= 0 || cfg.SendBufSize <= 0 {
		t.Error("expected recv/send buffer sizes to be defaulted")
	}
	if cfg.HeartbeatInterval <= 0 || cfg.HeartbeatTimeout <= 0 {
		t.Error("expected heartbeat interval/timeout to be defaulted")
	}
	if cfg.ActivationPollInterval <= 0 {
		t.Error("expected activation poll interval to be defaulted")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %+v, want info/text", cfg.Logging)
	}
}
