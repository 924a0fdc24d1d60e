// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"path/filepath"
	"time"
)

// AppConfig is the effective daemon configuration after defaults, file and
// environment have been merged.
type AppConfig struct {
	Version string `yaml:"-"`

	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	Device    DeviceConfig    `yaml:"device"`
	Download  DownloadConfig  `yaml:"download"`
	Registry  RegistryConfig  `yaml:"registry"`
	Journal   JournalConfig   `yaml:"journal"`
	Events    EventsConfig    `yaml:"events"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DeviceConfig describes the attached recorder.
type DeviceConfig struct {
	ID    string `yaml:"id"`
	Model string `yaml:"model"`
	// BytesPerSecond overrides the model profile when > 0.
	BytesPerSecond int           `yaml:"bytes_per_second"`
	Root           string        `yaml:"root"`
	LockTimeout    time.Duration `yaml:"lock_timeout"`
	ChunkSize      int           `yaml:"chunk_size"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

type DownloadConfig struct {
	Dir              string        `yaml:"dir"`
	MaxAttempts      int           `yaml:"max_attempts"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	EventBuffer      int           `yaml:"event_buffer"`
	AutoSync         bool          `yaml:"auto_sync"`
}

type RegistryConfig struct {
	Backend string `yaml:"backend"`
}

type JournalConfig struct {
	Enabled bool `yaml:"enabled"`
	// Dir defaults to <data_dir>/journal.
	Dir string `yaml:"dir"`
}

// EventsConfig controls out-of-process event forwarding. An empty RedisAddr
// disables the forwarder.
type EventsConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`
}

type APIConfig struct {
	Listen string `yaml:"listen"`
	// RateLimit is requests per minute per client IP. 0 disables limiting.
	RateLimit int `yaml:"rate_limit"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

const (
	DefaultDataDir          = "./data"
	DefaultLogLevel         = "info"
	DefaultDeviceID         = "default"
	DefaultDeviceModel      = "legacy"
	DefaultLockTimeout      = 5 * time.Second
	DefaultChunkSize        = 64 * 1024
	DefaultPollInterval     = 2 * time.Second
	DefaultMaxAttempts      = 3
	DefaultRetryBackoff     = time.Second
	DefaultProgressInterval = 250 * time.Millisecond
	DefaultEventBuffer      = 64
	DefaultRegistryBackend  = "sqlite"
	DefaultRedisChannel     = "recsync:events"
	DefaultListen           = ":8089"
	DefaultRateLimit        = 600
	DefaultExporter         = "grpc"
	DefaultSamplingRate     = 1.0
)

// Defaults returns the built-in configuration. Derived paths (download and
// journal dirs) are resolved after merging so they follow data_dir.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:  DefaultDataDir,
		LogLevel: DefaultLogLevel,
		Device: DeviceConfig{
			ID:           DefaultDeviceID,
			Model:        DefaultDeviceModel,
			LockTimeout:  DefaultLockTimeout,
			ChunkSize:    DefaultChunkSize,
			PollInterval: DefaultPollInterval,
		},
		Download: DownloadConfig{
			MaxAttempts:      DefaultMaxAttempts,
			RetryBackoff:     DefaultRetryBackoff,
			ProgressInterval: DefaultProgressInterval,
			EventBuffer:      DefaultEventBuffer,
			AutoSync:         true,
		},
		Registry: RegistryConfig{Backend: DefaultRegistryBackend},
		Events:   EventsConfig{RedisChannel: DefaultRedisChannel},
		API:      APIConfig{Listen: DefaultListen, RateLimit: DefaultRateLimit},
		Telemetry: TelemetryConfig{
			Exporter:     DefaultExporter,
			SamplingRate: DefaultSamplingRate,
		},
	}
}

// resolvePaths fills directory settings that derive from DataDir.
func (c *AppConfig) resolvePaths() {
	if abs, err := filepath.Abs(c.DataDir); err == nil {
		c.DataDir = abs
	}
	if c.Download.Dir == "" {
		c.Download.Dir = filepath.Join(c.DataDir, "recordings")
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = filepath.Join(c.DataDir, "journal")
	}
}
