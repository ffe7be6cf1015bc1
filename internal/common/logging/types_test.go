package logging

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestZapLogger_WritesToConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf})
	require.NoError(t, err)

	logger.Info("cache warmed", String("backend", "memory"))
	logger.Debug("should be filtered")
	logger.Error("store failed", fmt.Errorf("dial refused"), Any("attempt", 2))

	out := buf.String()
	assert.Contains(t, out, "cache warmed")
	assert.Contains(t, out, "memory")
	assert.Contains(t, out, "store failed")
	assert.Contains(t, out, "dial refused")
	assert.NotContains(t, out, "should be filtered")
}

func TestGlobalLogger_SetAndGet(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf})
	require.NoError(t, err)

	previous := GetGlobalLogger()
	defer SetGlobalLogger(previous)

	SetGlobalLogger(logger)
	GetGlobalLogger().Info("global in use")

	assert.Contains(t, buf.String(), "global in use")
}
