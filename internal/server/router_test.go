package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcdeck/internal/auth"
	"github.com/loykin/svcdeck/internal/host"
	"github.com/loykin/svcdeck/internal/process"
	"github.com/loykin/svcdeck/internal/registry"
	"github.com/loykin/svcdeck/internal/supervisor"
	"github.com/loykin/svcdeck/internal/unit"
)

type stubUnits struct{}

func (stubUnits) IsActive(_ context.Context, u string) (unit.State, error) {
	if u == "portal" {
		return unit.State{Active: true, Scope: unit.Scope{"systemctl"}, Raw: "active"}, nil
	}
	return unit.State{Raw: "inactive"}, nil
}

func (stubUnits) MainPID(context.Context, unit.Scope, string) (int, error) { return 1234, nil }

func (stubUnits) Command(_ context.Context, action, _ string) (unit.Scope, error) {
	if action == "start" {
		return nil, unit.ErrAllScopesFailed
	}
	return unit.Scope{"systemctl"}, nil
}

type stubPorts map[int]int

func (s stubPorts) FindPID(_ context.Context, port int) (int, bool) {
	pid, ok := s[port]
	return pid, ok
}
func (stubPorts) Describe() string { return "stub" }

type stubMemory struct{}

func (stubMemory) MemoryMB(context.Context, int) (int, bool) { return 50, true }

type stubLauncher struct {
	mu    sync.Mutex
	calls int
}

func (l *stubLauncher) Launch(process.LaunchRequest) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return 77, nil
}

type stubHost struct{}

func (stubHost) Summary(context.Context) host.Summary {
	return host.Summary{MemoryTotalMB: 8000, MemoryUsedMB: 2000, DiskPath: "/"}
}

func newSupervisor(t *testing.T, launcher *stubLauncher) *supervisor.Supervisor {
	t.Helper()
	reg, err := registry.New([]registry.Descriptor{
		{Name: "portal", Kind: registry.KindUnit, Unit: "portal", Port: 8795, Description: "Staff Portal"},
		{Name: "svc-a", Kind: registry.KindUnit, Unit: "svc-a"},
		{Name: "svc-b", Kind: registry.KindProcess, Port: 9000, Launch: &registry.LaunchSpec{Command: "./run"}},
	})
	require.NoError(t, err)
	sup, err := supervisor.New(reg, supervisor.Options{
		Self:     "portal",
		Units:    stubUnits{},
		Ports:    stubPorts{9000: 4242},
		Memory:   stubMemory{},
		Signal:   func(int) error { return nil },
		Launcher: launcher,
		Sleep:    func(time.Duration) {},
	})
	require.NoError(t, err)
	return sup
}

func setupRouter(t *testing.T, base string, opts Options) (http.Handler, *stubLauncher) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	l := &stubLauncher{}
	return NewRouter(newSupervisor(t, l), base, opts).Handler(), l
}

func doReq(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) supervisor.Result {
	t.Helper()
	var res supervisor.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestListServices(t *testing.T) {
	h, _ := setupRouter(t, "/api", Options{})
	rec := doReq(t, h, http.MethodGet, "/api/services", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, "portal", got[0]["name"])
	assert.Equal(t, "active", got[0]["status"])
	assert.Equal(t, float64(1234), got[0]["pid"])
	assert.Equal(t, float64(50), got[0]["memory_mb"])
	assert.Equal(t, true, got[0]["self"])

	assert.Equal(t, "svc-a", got[1]["name"])
	assert.Equal(t, "inactive", got[1]["status"])
	assert.NotContains(t, got[1], "pid")
	assert.NotContains(t, got[1], "memory_mb")

	assert.Equal(t, "svc-b", got[2]["name"])
	assert.Equal(t, "process", got[2]["kind"])
	assert.Equal(t, float64(4242), got[2]["pid"])
}

func TestGetService(t *testing.T) {
	h, _ := setupRouter(t, "", Options{})
	rec := doReq(t, h, http.MethodGet, "/services/svc-b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"active"`)

	rec = doReq(t, h, http.MethodGet, "/services/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActionStatusCodes(t *testing.T) {
	h, l := setupRouter(t, "/api", Options{})

	rec := doReq(t, h, http.MethodPost, "/api/services/nonexistent/start", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, supervisor.Result{Message: "Service not found"}, decodeResult(t, rec))

	rec = doReq(t, h, http.MethodPost, "/api/services/portal/stop", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, supervisor.Result{Message: "Cannot stop self"}, decodeResult(t, rec))

	rec = doReq(t, h, http.MethodPost, "/api/services/svc-a/explode", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, supervisor.Result{Message: "Invalid action"}, decodeResult(t, rec))

	rec = doReq(t, h, http.MethodPost, "/api/services/svc-a/start", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, supervisor.Result{Message: "start failed"}, decodeResult(t, rec))

	rec = doReq(t, h, http.MethodPost, "/api/services/svc-a/restart", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, supervisor.Result{OK: true, Message: "restart OK"}, decodeResult(t, rec))

	rec = doReq(t, h, http.MethodPost, "/api/services/svc-b/restart", "")
	assert.Equal(t, supervisor.Result{OK: true, Message: "restart initiated"}, decodeResult(t, rec))
	assert.Equal(t, 1, l.calls)
}

func TestActionRequiresAdmin(t *testing.T) {
	svc, err := auth.NewService("secret")
	require.NoError(t, err)
	guard := auth.NewMiddleware(svc, "admin", true, AdminOnly)
	h, l := setupRouter(t, "/api", Options{Auth: guard})

	rec := doReq(t, h, http.MethodPost, "/api/services/svc-b/start", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, supervisor.Result{Message: "Admin only"}, decodeResult(t, rec))

	viewer, _ := svc.Issue("v", "viewer", time.Hour)
	rec = doReq(t, h, http.MethodPost, "/api/services/svc-b/start", viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, l.calls)

	admin, _ := svc.Issue("a", "admin", time.Hour)
	rec = doReq(t, h, http.MethodPost, "/api/services/svc-b/start", admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, supervisor.Result{OK: true, Message: "start initiated"}, decodeResult(t, rec))

	// reads stay open
	rec = doReq(t, h, http.MethodGet, "/api/services", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHostRoute(t *testing.T) {
	h, _ := setupRouter(t, "/api", Options{})
	assert.Equal(t, http.StatusNotFound, doReq(t, h, http.MethodGet, "/api/host", "").Code)

	h, _ = setupRouter(t, "/api", Options{Host: stubHost{}})
	rec := doReq(t, h, http.MethodGet, "/api/host", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var s host.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, uint64(8000), s.MemoryTotalMB)
}

func TestNewServerAndServe(t *testing.T) {
	h, _ := setupRouter(t, "", Options{})
	srv := NewServer("127.0.0.1:0", h, nil)
	assert.Nil(t, srv.TLSConfig)
	done := make(chan error, 1)
	go func() { done <- Serve(srv, slogDiscard()) }()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}
