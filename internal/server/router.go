package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/svcdeck/internal/auth"
	"github.com/loykin/svcdeck/internal/host"
	"github.com/loykin/svcdeck/internal/registry"
	"github.com/loykin/svcdeck/internal/supervisor"
)

// Router provides embeddable HTTP handlers for the supervisor.
// Endpoints:
//
//	GET  {basePath}/services               list in registry order
//	GET  {basePath}/services/:name         single service
//	POST {basePath}/services/:name/:action start | stop | restart
//	GET  {basePath}/host                   host memory and disk
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      *supervisor.Supervisor
	host     HostReader
	guard    *auth.Middleware
	basePath string
}

// HostReader produces the host summary.
type HostReader interface {
	Summary(ctx context.Context) host.Summary
}

// Options configures optional parts of the router.
type Options struct {
	Host HostReader
	// Auth, when non-nil, gates control routes.
	Auth *auth.Middleware
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(sup *supervisor.Supervisor, basePath string, opts Options) *Router {
	guard := opts.Auth
	if guard == nil {
		guard = auth.NewMiddleware(nil, "", false, nil)
	}
	return &Router{sup: sup, host: opts.Host, guard: guard, basePath: sanitizeBase(basePath)}
}

// AdminOnly writes the rejection for callers failing the role check.
func AdminOnly(c *gin.Context) {
	writeJSON(c, http.StatusForbidden, supervisor.Result{OK: false, Message: "Admin only"})
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	r.Register(g.Group(r.basePath))
	return g
}

// Register mounts the routes on an existing gin group.
func (r *Router) Register(group *gin.RouterGroup) {
	group.GET("/services", r.handleList)
	group.GET("/services/:name", r.handleGet)
	group.POST("/services/:name/:action", r.guard.GinRequireRole(), r.handleAction)
	group.GET("/host", r.handleHost)
}

// NewServer builds an http.Server for h. A nil tlsCfg serves plain HTTP.
func NewServer(addr string, h http.Handler, tlsCfg *tls.Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Actions may spend control.timeout per scope plus the restart grace.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Serve runs srv until it is shut down. http.ErrServerClosed is not an error.
func Serve(srv *http.Server, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	logger.Info("http server listening", "addr", ln.Addr().String(), "tls", srv.TLSConfig != nil)
	if srv.TLSConfig != nil {
		err = srv.ServeTLS(ln, "", "")
	} else {
		err = srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

// serviceView is the wire shape of one service with its status.
type serviceView struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Kind        registry.Kind    `json:"kind"`
	Unit        string           `json:"unit,omitempty"`
	Port        int              `json:"port,omitempty"`
	Status      supervisor.State `json:"status"`
	PID         int              `json:"pid,omitempty"`
	MemoryMB    *int             `json:"memory_mb,omitempty"`
	Detail      string           `json:"detail,omitempty"`
	Self        bool             `json:"self,omitempty"`
}

func (r *Router) view(e supervisor.Entry) serviceView {
	d := e.Descriptor
	return serviceView{
		Name:        d.Name,
		Description: d.Description,
		Kind:        d.Kind,
		Unit:        d.Unit,
		Port:        d.Port,
		Status:      e.Status.State,
		PID:         e.Status.PID,
		MemoryMB:    e.Status.MemoryMB,
		Detail:      e.Status.Detail,
		Self:        d.Name == r.sup.Self(),
	}
}

func (r *Router) handleList(c *gin.Context) {
	entries := r.sup.ListStatus(c.Request.Context())
	out := make([]serviceView, 0, len(entries))
	for _, e := range entries {
		out = append(out, r.view(e))
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleGet(c *gin.Context) {
	e, ok := r.sup.Probe(c.Request.Context(), c.Param("name"))
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: supervisor.MsgNotFound})
		return
	}
	writeJSON(c, http.StatusOK, r.view(e))
}

func (r *Router) handleAction(c *gin.Context) {
	res := r.sup.PerformAction(c.Request.Context(), c.Param("name"), c.Param("action"))
	writeJSON(c, actionStatus(res), res)
}

// actionStatus maps refusals to HTTP codes; executed actions are 200 even when they failed.
func actionStatus(res supervisor.Result) int {
	if res.OK {
		return http.StatusOK
	}
	switch res.Message {
	case supervisor.MsgNotFound:
		return http.StatusNotFound
	case supervisor.MsgCannotStopSelf, supervisor.MsgInvalidAction:
		return http.StatusBadRequest
	}
	return http.StatusOK
}

func (r *Router) handleHost(c *gin.Context) {
	if r.host == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "host summary disabled"})
		return
	}
	writeJSON(c, http.StatusOK, r.host.Summary(c.Request.Context()))
}
