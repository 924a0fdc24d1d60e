// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out))
	return out
}

func TestConfigure_AttachesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "recsync-test", Version: "v0.0.1"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("scheduler")
	l.Info().Msg("hello")

	line := decodeLine(t, &buf)
	assert.Equal(t, "recsync-test", line["service"])
	assert.Equal(t, "v0.0.1", line["version"])
	assert.Equal(t, "scheduler", line[FieldComponent])
	assert.Equal(t, "hello", line["message"])
}

func TestConfigure_CanBeReapplied(t *testing.T) {
	var first, second bytes.Buffer
	Configure(Config{Output: &first})
	Configure(Config{Output: &second, Service: "second"})
	t.Cleanup(func() { Configure(Config{}) })

	L().Info().Msg("after reconfigure")
	assert.Zero(t, first.Len())
	assert.Equal(t, "second", decodeLine(t, &second)["service"])
}

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	ctx := ContextWithSessionID(context.Background(), "sess-1")
	ctx = ContextWithDeviceID(ctx, "dev-9")
	l := WithComponentFromContext(ctx, "catalog")
	l.Info().Msg("refresh")

	line := decodeLine(t, &buf)
	assert.Equal(t, "sess-1", line[FieldSessionID])
	assert.Equal(t, "dev-9", line[FieldDeviceID])
	assert.Equal(t, "catalog", line[FieldComponent])
}

func TestWithContext_NoFieldsReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithContext(context.Background(), Base())
	l.Info().Msg("plain")
	line := decodeLine(t, &buf)
	_, hasSession := line[FieldSessionID]
	assert.False(t, hasSession)
}

func TestFromContext_FallsBackToBase(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	l = FromContext(nil) //nolint:staticcheck
	require.NotNil(t, l)
}
