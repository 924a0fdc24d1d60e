// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/recsync/internal/config"
	"github.com/ManuGH/recsync/internal/device/devicetest"
)

func loadHolder(t *testing.T, body string) *config.Holder {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "recsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("data_dir: %s\n%s", dir, body)), 0o600))
	loader := config.NewLoader(path, "v-test")
	cfg, err := loader.Load()
	require.NoError(t, err)
	return config.NewHolder(cfg, loader)
}

func TestBuild_RequiresDeviceRoot(t *testing.T) {
	holder := loadHolder(t, "")
	_, err := Build(context.Background(), holder, Options{})
	assert.ErrorIs(t, err, ErrMissingDeviceRoot)
}

func TestApp_AutoSyncsAttachedDevice(t *testing.T) {
	mr := miniredis.RunT(t)
	holder := loadHolder(t, fmt.Sprintf(`
device:
  poll_interval: 20ms
download:
  retry_backoff: 1ms
  progress_interval: 1ms
journal:
  enabled: true
events:
  redis_addr: %s
api:
  listen: "127.0.0.1:0"
`, mr.Addr()))

	fake := devicetest.NewFake("dev-1")
	fake.AddSizedFile("2024-03-01_100000.hda", 4096)
	fake.AddSizedFile("2024-03-01_110000.hda", 8192)

	app, err := Build(context.Background(), holder, Options{Transport: fake})
	require.NoError(t, err)
	app.reloadSignal = nil
	t.Cleanup(app.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, err := app.Registry.Count(context.Background())
		return err == nil && n == 2
	}, 5*time.Second, 10*time.Millisecond)

	rec, err := app.Registry.Get(context.Background(), "2024-03-01_110000.hda")
	require.NoError(t, err)
	require.NotNil(t, rec)
	info, err := os.Stat(rec.FilePath)
	require.NoError(t, err)
	assert.Equal(t, int64(8192), info.Size())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestApp_ApplyUpdatesRuntimeSettings(t *testing.T) {
	holder := loadHolder(t, "api:\n  listen: \"\"\n")
	app, err := Build(context.Background(), holder, Options{Transport: devicetest.NewFake("dev-1")})
	require.NoError(t, err)
	t.Cleanup(app.Close)
	assert.Nil(t, app.API)

	cfg := holder.Get()
	cfg.Download.MaxAttempts = 9
	cfg.Download.AutoSync = false
	app.apply(cfg)

	assert.Equal(t, 9, app.Scheduler.Config().MaxAttempts)
	assert.False(t, app.Watcher.autoSync.Load())
}
