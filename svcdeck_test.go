package svcdeck

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu     sync.Mutex
	events []HistoryEvent
}

func (m *memSink) Send(_ context.Context, e HistoryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func writeConfig(t *testing.T, body string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "svcdeck.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	c, err := LoadConfig(path)
	require.NoError(t, err)
	return c
}

func TestDeckProbesOwnListener(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("socket table lookup is exercised on linux")
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	c := writeConfig(t, fmt.Sprintf(`
self = "me"
[probe]
port_resolver = "socket"
timeout = "3s"

[[services]]
name = "me"
kind = "process"
port = %d
command = "true"
`, port))
	d, err := New(c, Options{})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	e, ok := d.Status(context.Background(), "me")
	require.True(t, ok)
	assert.Equal(t, StateActive, e.Status.State)
	assert.Equal(t, os.Getpid(), e.Status.PID)

	_, ok = d.Status(context.Background(), "ghost")
	assert.False(t, ok)
}

func TestDeckRefusalsAndHistory(t *testing.T) {
	c := writeConfig(t, `
self = "portal"
[[services]]
name = "portal"
kind = "unit"
unit = "portal.service"
`)
	sink := &memSink{}
	d, err := New(c, Options{History: sink})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	ctx := context.Background()
	assert.Equal(t, Result{OK: false, Message: "Service not found"}, d.PerformAction(ctx, "ghost", "start"))
	assert.Equal(t, Result{OK: false, Message: "Cannot stop self"}, d.PerformAction(ctx, "portal", "stop"))
	assert.Equal(t, Result{OK: false, Message: "Invalid action"}, d.PerformAction(ctx, "portal", "reload"))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, 2)
	assert.Equal(t, "stop", sink.events[0].Action)
	assert.False(t, sink.events[0].OK)
}

func TestDeckHandlerGuardsActions(t *testing.T) {
	c := writeConfig(t, `
[server]
base_path = "/api"
[server.auth]
enabled = true
jwt_secret = "s3cret"

[[services]]
name = "portal"
kind = "unit"
unit = "portal.service"
`)
	d, err := New(c, Options{})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()
	h, err := d.Handler()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/services/portal/reload", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	tok, err := IssueToken("s3cret", "ops", "admin", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/services/portal/reload", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "Invalid action", res.Message)
}

func TestNewRejectsBadHistoryDSN(t *testing.T) {
	c := writeConfig(t, `
[history]
dsn = "redis://localhost"
[[services]]
name = "portal"
kind = "unit"
unit = "portal.service"
`)
	_, err := New(c, Options{})
	assert.Error(t, err)
}
