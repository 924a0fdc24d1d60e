// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// Validate checks the merged configuration and reports every invalid field.
func Validate(cfg AppConfig) error {
	v := &ValidationError{}

	if strings.TrimSpace(cfg.DataDir) == "" {
		v.add("data_dir", cfg.DataDir, "must not be empty")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil || cfg.LogLevel == "" {
		v.add("log_level", cfg.LogLevel, "must be one of trace, debug, info, warn, error")
	}

	if strings.TrimSpace(cfg.Device.ID) == "" {
		v.add("device.id", cfg.Device.ID, "must not be empty")
	}
	if cfg.Device.BytesPerSecond < 0 {
		v.add("device.bytes_per_second", cfg.Device.BytesPerSecond, "must be >= 0")
	}
	if cfg.Device.LockTimeout <= 0 {
		v.add("device.lock_timeout", cfg.Device.LockTimeout, "must be positive")
	}
	if cfg.Device.ChunkSize <= 0 {
		v.add("device.chunk_size", cfg.Device.ChunkSize, "must be positive")
	}
	if cfg.Device.PollInterval <= 0 {
		v.add("device.poll_interval", cfg.Device.PollInterval, "must be positive")
	}

	if cfg.Download.MaxAttempts < 1 {
		v.add("download.max_attempts", cfg.Download.MaxAttempts, "must be >= 1")
	}
	if cfg.Download.RetryBackoff < 0 {
		v.add("download.retry_backoff", cfg.Download.RetryBackoff, "must be >= 0")
	}
	if cfg.Download.ProgressInterval < 0 {
		v.add("download.progress_interval", cfg.Download.ProgressInterval, "must be >= 0")
	}
	if cfg.Download.EventBuffer < 1 {
		v.add("download.event_buffer", cfg.Download.EventBuffer, "must be >= 1")
	}

	switch cfg.Registry.Backend {
	case "sqlite", "memory":
	default:
		v.add("registry.backend", cfg.Registry.Backend, "must be sqlite or memory")
	}

	if cfg.Events.RedisAddr != "" && strings.TrimSpace(cfg.Events.RedisChannel) == "" {
		v.add("events.redis_channel", cfg.Events.RedisChannel, "required when redis_addr is set")
	}

	if cfg.API.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.API.Listen); err != nil {
			v.add("api.listen", cfg.API.Listen, "must be host:port")
		}
	}
	if cfg.API.RateLimit < 0 {
		v.add("api.rate_limit", cfg.API.RateLimit, "must be >= 0")
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			v.add("telemetry.exporter", cfg.Telemetry.Exporter, "must be grpc or http")
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		v.add("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, "must be within [0, 1]")
	}

	return v.errOrNil()
}
