package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warn": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, Config{Format: "json"}.Validate())
	assert.Error(t, Config{Format: "xml"}.Validate())
}

func TestJSONLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := Config{Level: "warn", Format: FormatJSON}.NewLoggerTo(&buf)
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("action failed", "name", "web")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "action failed", m["msg"])
	assert.Equal(t, "web", m["name"])
}

func TestColorHandlerKeepsColorOnWith(t *testing.T) {
	var buf bytes.Buffer
	l, err := Config{Format: FormatColor}.NewLoggerTo(&buf)
	require.NoError(t, err)
	l.With("service", "web").Info("probed")
	out := buf.String()
	assert.Contains(t, out, "[32mINFO")
	assert.Contains(t, out, "service=web")
}

func TestColorHandlerWithoutTime(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewColorTextHandler(&buf, nil, false)).Error("x")
	assert.NotContains(t, buf.String(), "time=")
	assert.Contains(t, buf.String(), "[31mERROR")
}

func TestWriterDefaultsAndFile(t *testing.T) {
	w := Config{}.Writer()
	assert.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "svcdeck.log")
	fw := Config{File: path}.Writer()
	ljw, ok := fw.(*lj.Logger)
	require.True(t, ok)
	assert.Equal(t, DefaultMaxSizeMB, ljw.MaxSize)
	assert.Equal(t, DefaultMaxBackups, ljw.MaxBackups)
	assert.Equal(t, DefaultMaxAgeDays, ljw.MaxAge)

	l, closer, err := Config{File: path, MaxSizeMB: 1}.NewLogger()
	require.NoError(t, err)
	l.Info("hello")
	require.NoError(t, closer.Close())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "msg=hello")
}
