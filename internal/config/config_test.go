package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HARVEST_STORE", "HARVEST_LOCK_TTL", "HARVEST_BLOB_SECURE", "HARVEST_MAX_ITEMS", "HARVEST_BLOB_DRIVER"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	assert.Equal(t, StoreSurrealDB, cfg.Store)
	assert.Equal(t, "harvest", cfg.SurrealDBNamespace)
	assert.Equal(t, BlobNone, cfg.BlobDriver)
	assert.True(t, cfg.BlobSecure)
	assert.Equal(t, 15_000_000, cfg.MaxInlineGraphBytes)
	assert.Equal(t, 7, cfg.AutoarchiveGraceDays)
	assert.Equal(t, 0, cfg.MaxItems)
	assert.Equal(t, 20, cfg.PreviewMaxItems)
	assert.Equal(t, 2*time.Hour, cfg.LockTTL)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 8585, cfg.ServerPort)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HARVEST_STORE", "mongo")
	t.Setenv("HARVEST_BLOB_DRIVER", "MINIO")
	t.Setenv("HARVEST_BLOB_SECURE", "false")
	t.Setenv("HARVEST_MAX_ITEMS", "50")
	t.Setenv("HARVEST_LOCK_TTL", "30m")
	t.Setenv("HARVEST_HTTP_TIMEOUT", "bogus")
	t.Setenv("HARVEST_LOG_LEVEL", "warning")

	cfg := Load()
	assert.Equal(t, StoreMongo, cfg.Store)
	assert.Equal(t, BlobMinio, cfg.BlobDriver)
	assert.False(t, cfg.BlobSecure)
	assert.Equal(t, 50, cfg.MaxItems)
	assert.Equal(t, 30*time.Minute, cfg.LockTTL)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout, "invalid value keeps the default")
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("harvest started", "source_id", "src-1")

	assert.Contains(t, stderr.String(), "harvest started")
	assert.NotContains(t, stderr.String(), "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &rec))
	assert.Equal(t, "harvest started", rec["msg"])
	assert.Equal(t, "src-1", rec["source_id"])
}

func TestSetupLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvest.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("written")
	require.NoError(t, cleanup())

	logger, cleanup = SetupLogger(filepath.Join(t.TempDir(), "missing", "harvest.log"), slog.LevelInfo)
	assert.NotNil(t, logger)
	assert.NoError(t, cleanup())
}
