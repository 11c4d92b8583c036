package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		level string
		want  slog.Level
	}{
		{name: "production default", env: "production", want: slog.LevelInfo},
		{name: "development default", env: "development", want: slog.LevelDebug},
		{name: "explicit level", env: "production", level: "warn", want: slog.LevelWarn},
		{name: "unknown level falls back", env: "production", level: "loud", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.env, tt.level))
		})
	}
}

func TestNewLogger_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "")

	logger.Debug("hidden")
	logger.Info("models loaded", "locator", "pigo")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "models loaded", entry["msg"])
	assert.Equal(t, "pigo", entry["locator"])
	assert.Equal(t, "faceguard", entry["service"])
}

func TestNewLogger_DevelopmentWritesText(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "development", "").Debug("decoded frame")

	assert.Contains(t, buf.String(), "msg=\"decoded frame\"")
	assert.Contains(t, buf.String(), "source=")
}
