// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty configPath means ENV-only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, if any.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load parses the file strictly, applies the environment, resolves derived
// paths and validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.resolvePaths()
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes YAML over the defaults already in cfg. Keys absent from
// the file keep their default. Unknown keys are fatal.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	p := EnvPrefix
	cfg.DataDir = l.envString(p+"DATA_DIR", cfg.DataDir)
	cfg.LogLevel = l.envString(p+"LOG_LEVEL", cfg.LogLevel)

	d := &cfg.Device
	d.ID = l.envString(p+"DEVICE_ID", d.ID)
	d.Model = l.envString(p+"DEVICE_MODEL", d.Model)
	d.BytesPerSecond = l.envInt(p+"DEVICE_BYTES_PER_SECOND", d.BytesPerSecond)
	d.Root = l.envString(p+"DEVICE_ROOT", d.Root)
	d.LockTimeout = l.envDuration(p+"DEVICE_LOCK_TIMEOUT", d.LockTimeout)
	d.ChunkSize = l.envInt(p+"DEVICE_CHUNK_SIZE", d.ChunkSize)
	d.PollInterval = l.envDuration(p+"DEVICE_POLL_INTERVAL", d.PollInterval)

	dl := &cfg.Download
	dl.Dir = l.envString(p+"DOWNLOAD_DIR", dl.Dir)
	dl.MaxAttempts = l.envInt(p+"DOWNLOAD_MAX_ATTEMPTS", dl.MaxAttempts)
	dl.RetryBackoff = l.envDuration(p+"DOWNLOAD_RETRY_BACKOFF", dl.RetryBackoff)
	dl.ProgressInterval = l.envDuration(p+"DOWNLOAD_PROGRESS_INTERVAL", dl.ProgressInterval)
	dl.EventBuffer = l.envInt(p+"DOWNLOAD_EVENT_BUFFER", dl.EventBuffer)
	dl.AutoSync = l.envBool(p+"DOWNLOAD_AUTO_SYNC", dl.AutoSync)

	cfg.Registry.Backend = l.envString(p+"REGISTRY_BACKEND", cfg.Registry.Backend)
	cfg.Journal.Enabled = l.envBool(p+"JOURNAL_ENABLED", cfg.Journal.Enabled)
	cfg.Journal.Dir = l.envString(p+"JOURNAL_DIR", cfg.Journal.Dir)

	ev := &cfg.Events
	ev.RedisAddr = l.envString(p+"EVENTS_REDIS_ADDR", ev.RedisAddr)
	ev.RedisPassword = l.envString(p+"EVENTS_REDIS_PASSWORD", ev.RedisPassword)
	ev.RedisDB = l.envInt(p+"EVENTS_REDIS_DB", ev.RedisDB)
	ev.RedisChannel = l.envString(p+"EVENTS_REDIS_CHANNEL", ev.RedisChannel)

	cfg.API.Listen = l.envString(p+"API_LISTEN", cfg.API.Listen)
	cfg.API.RateLimit = l.envInt(p+"API_RATE_LIMIT", cfg.API.RateLimit)

	t := &cfg.Telemetry
	t.Enabled = l.envBool(p+"TELEMETRY_ENABLED", t.Enabled)
	t.Exporter = l.envString(p+"TELEMETRY_EXPORTER", t.Exporter)
	t.Endpoint = l.envString(p+"TELEMETRY_ENDPOINT", t.Endpoint)
	t.SamplingRate = l.envFloat(p+"TELEMETRY_SAMPLING_RATE", t.SamplingRate)
}
