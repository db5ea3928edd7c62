package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPretty(buf *bytes.Buffer, level slog.Level) *Logger {
	return New(Config{Writer: buf, Format: FormatPretty, Level: level, NoColor: true})
}

func TestNew_FormatFromEnvironment(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		wantJSON    bool
	}{
		{"production uses json", "production", true},
		{"development uses pretty", "development", false},
		{"staging uses pretty", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Writer: &buf, Environment: tt.environment})
			log.Info("letter created")

			out := buf.String()
			if tt.wantJSON {
				assert.Contains(t, out, `"msg":"letter created"`)
			} else {
				assert.Contains(t, out, "INF")
				assert.Contains(t, out, "letter created")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"loud", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newPretty(&buf, slog.LevelInfo)
	child := log.Component("store")

	child.Debug("hidden")
	assert.Empty(t, buf.String())

	log.SetLevel(slog.LevelDebug)
	assert.Equal(t, slog.LevelDebug, child.Level())
	child.Debug("shown")
	assert.Contains(t, buf.String(), "DBG [store] shown")
}

func TestPrettyHandler_Line(t *testing.T) {
	var buf bytes.Buffer
	log := newPretty(&buf, slog.LevelInfo)

	log.Component("store").Info("letter created", "letter_id", "ltr_1", "member", "Jin")

	line := strings.TrimSuffix(buf.String(), "\n")
	_, err := time.Parse("15:04:05", line[:8])
	require.NoError(t, err)
	assert.Equal(t, " INF [store] letter created letter_id=ltr_1 member=Jin", line[8:])
}

func TestPrettyHandler_Values(t *testing.T) {
	var buf bytes.Buffer
	log := newPretty(&buf, slog.LevelInfo)

	log.Info("values",
		"name", "Kim Anna",
		"empty", "",
		"wait", 1500*time.Millisecond,
		"err", errors.New("offline"),
	)

	out := buf.String()
	assert.Contains(t, out, `name="Kim Anna"`)
	assert.Contains(t, out, `empty=""`)
	assert.Contains(t, out, "wait=1.5s")
	assert.Contains(t, out, "err=offline")
}

func TestPrettyHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	log := newPretty(&buf, slog.LevelInfo)

	log.WithGroup("http").Info("request",
		"status", 200,
		slog.Group("client", "ip", "10.0.0.1"),
	)
	assert.Contains(t, buf.String(), "http.status=200 http.client.ip=10.0.0.1")
}

func TestPrettyHandler_WithAttrsKeepsOrder(t *testing.T) {
	var buf bytes.Buffer
	log := newPretty(&buf, slog.LevelInfo)

	log.WithError(errors.New("boom")).With("request_id", "r1").Warn("failed", "attempt", 2)
	assert.Contains(t, buf.String(), "WRN failed error=boom request_id=r1 attempt=2")
}

func TestPrettyHandler_Color(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: FormatPretty, Level: slog.LevelInfo})

	log.Error("broken")
	assert.Contains(t, buf.String(), ansiRed+"ERR"+ansiReset)
}

func TestNew_JSONComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: FormatJSON, Level: slog.LevelInfo})

	log.Component("sse").Info("client connected", "clients", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "sse", rec[ComponentKey])
	assert.EqualValues(t, 3, rec["clients"])
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lettersctl.log")

	log, f, err := OpenFile(path, Config{Level: slog.LevelInfo})
	require.NoError(t, err)
	log.Info("feed opened")
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "feed opened")
	assert.NotContains(t, string(data), ansiReset)
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("dropped")
	assert.False(t, log.Enabled(t.Context(), slog.LevelError))
}
