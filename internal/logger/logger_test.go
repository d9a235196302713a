package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}
	return entries
}

func TestContextFieldsReachEntries(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "debug", Format: "json", Output: &buf, Service: "councilgen-test"})

	ctx := l.WithContext(context.Background())
	ctx = SetRunID(ctx, "run-1")
	ctx = SetSpecID(ctx, "service-bin-collection")

	assert.Equal(t, "run-1", GetRunID(ctx))
	assert.Equal(t, "service-bin-collection", GetSpecID(ctx))
	assert.Empty(t, GetRequestID(ctx))

	With(Fields{FieldStep: 3}).WithDuration(120).Info(ctx, "Generated %s", "item")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "Generated item", entry["message"])
	assert.Equal(t, "councilgen-test", entry["service"])
	assert.Equal(t, "run-1", entry[FieldRunID])
	assert.Equal(t, "service-bin-collection", entry[FieldSpecID])
	assert.Equal(t, 3.0, entry[FieldStep])
	assert.Equal(t, 120.0, entry[FieldDurationMs])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Format: "json", Output: &buf})
	ctx := l.WithContext(context.Background())

	CtxInfo(ctx, "dropped")
	CtxWarn(ctx, "kept")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["message"])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, GetDefault(), FromContext(context.Background()))
	assert.Equal(t, "", GetFieldString(context.Background(), FieldComponent))
}

func TestRotatingFileOutput(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "councilgen.log")
	l := New(Options{Level: "info", Format: "text", Output: &buf, File: path, FileOnly: true, MaxSizeMB: 1})
	t.Cleanup(func() { _ = Close() })

	l.WithField(FieldSpecID, "home").Info("written to file")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Contains(t, string(data), "spec_id=home")
	assert.Empty(t, buf.String())
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILE", "/tmp/councilgen.log")
	t.Setenv("LOG_MAX_SIZE", "not a number")
	t.Setenv("LOG_COMPRESS", "false")

	opts := OptionsFromEnv("councilgen-cli")
	assert.Equal(t, "debug", opts.Level)
	assert.Equal(t, "json", opts.Format)
	assert.Equal(t, "councilgen-cli", opts.Service)
	assert.Equal(t, "/tmp/councilgen.log", opts.File)
	assert.Equal(t, 100, opts.MaxSizeMB)
	assert.False(t, opts.Compress)
}
