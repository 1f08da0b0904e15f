// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MonitorConfig is the AI Monitor Service's full configuration, loaded
// from YAML and defaulted/clamped by Validate before use.
type MonitorConfig struct {
	Port int `yaml:"port"`

	// MaxClients bounds the client table's capacity. Clamped to
	// [1, 3] — this service serves a handful of local observers, never a
	// general connection pool.
	MaxClients int `yaml:"max_clients"`

	RecvBufSize int `yaml:"recv_buf_size"`
	SendBufSize int `yaml:"send_buf_size"`

	// HeartbeatInterval/HeartbeatTimeout are advisory: the core records
	// each ping's arrival time but does not itself drop idle clients.
	// IdleSweepEnabled is parsed but not read by the service: no sweep
	// runs, and clients are never dropped for being idle.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	IdleSweepEnabled  bool          `yaml:"idle_sweep_enabled"`

	EnableBroadcast bool `yaml:"enable_broadcast"`

	// ActivationPollInterval is the cron-style period at which the
	// Lifecycle Controller retries listening-socket creation while the
	// device has not yet completed IoT activation.
	ActivationPollInterval time.Duration `yaml:"activation_poll_interval"`

	// HealthSnapshotInterval gates the periodic CPU/mem/disk/load
	// snapshot broadcast over the CUSTOM_LOG channel. Zero disables it.
	HealthSnapshotInterval time.Duration `yaml:"health_snapshot_interval"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the ambient structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error, default info
	Format string `yaml:"format"` // json|text, default text
	File   string `yaml:"file"`   // optional additional file sink
}

const (
	DefaultPort                   = 5055
	defaultRecvBufSize            = 1024
	defaultSendBufSize            = 1024
	defaultHeartbeatInterval      = 30 * time.Second
	defaultHeartbeatTimeout       = 60 * time.Second
	defaultActivationPollInterval = 2 * time.Second
)

// LoadMonitorConfig reads, parses, and validates path as YAML.
func LoadMonitorConfig(path string) (*MonitorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading monitor config: %w", err)
	}

	cfg := defaultMonitorConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing monitor config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating monitor config: %w", err)
	}
	return &cfg, nil
}

func defaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Port:                   DefaultPort,
		MaxClients:             3,
		RecvBufSize:            defaultRecvBufSize,
		SendBufSize:            defaultSendBufSize,
		HeartbeatInterval:      defaultHeartbeatInterval,
		HeartbeatTimeout:       defaultHeartbeatTimeout,
		EnableBroadcast:        true,
		ActivationPollInterval: defaultActivationPollInterval,
		Logging:                LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate applies defaults to zero-valued fields and clamps the fields
// the original firmware hard-bounds (max_clients in [1,3]).
func (c *MonitorConfig) Validate() error {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.MaxClients < 1 {
		c.MaxClients = 1
	}
	if c.MaxClients > 3 {
		c.MaxClients = 3
	}
	if c.RecvBufSize <= 0 {
		c.RecvBufSize = defaultRecvBufSize
	}
	if c.SendBufSize <= 0 {
		c.SendBufSize = defaultSendBufSize
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.ActivationPollInterval <= 0 {
		c.ActivationPollInterval = defaultActivationPollInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	return nil
}
