package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestFormats(t *testing.T) {
	buf := &bytes.Buffer{}
	NewWithWriter(buf, "info", "json").Info("probe_started", "url", "https://example.com")
	assert.Contains(t, buf.String(), `"msg":"probe_started"`)

	buf.Reset()
	NewWithWriter(buf, "info", "text").Info("probe_started")
	assert.Contains(t, buf.String(), "msg=probe_started")

	buf.Reset()
	NewWithWriter(buf, "warn", "text").Info("hidden")
	assert.Empty(t, buf.String())
}
