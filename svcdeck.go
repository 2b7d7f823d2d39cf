// Package svcdeck reports and controls a fixed set of heterogeneous services:
// units owned by the system unit manager and raw processes known only by the
// TCP port they listen on.
package svcdeck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/svcdeck/internal/auth"
	cfg "github.com/loykin/svcdeck/internal/config"
	"github.com/loykin/svcdeck/internal/cron"
	"github.com/loykin/svcdeck/internal/detector"
	"github.com/loykin/svcdeck/internal/env"
	"github.com/loykin/svcdeck/internal/history"
	"github.com/loykin/svcdeck/internal/history/factory"
	"github.com/loykin/svcdeck/internal/host"
	"github.com/loykin/svcdeck/internal/metrics"
	"github.com/loykin/svcdeck/internal/process"
	"github.com/loykin/svcdeck/internal/registry"
	iapi "github.com/loykin/svcdeck/internal/server"
	"github.com/loykin/svcdeck/internal/supervisor"
	svctls "github.com/loykin/svcdeck/internal/tls"
	"github.com/loykin/svcdeck/internal/unit"
)

// Re-export core types for external consumers.

type Config = cfg.Config

type Descriptor = registry.Descriptor

type Status = supervisor.Status

type Entry = supervisor.Entry

type Result = supervisor.Result

type HostSummary = host.Summary

type HistorySink = history.Sink

type HistoryEvent = history.Event

const (
	StateActive   = supervisor.StateActive
	StateInactive = supervisor.StateInactive
	StateUnknown  = supervisor.StateUnknown
)

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// Options adjusts how a Deck is assembled.
type Options struct {
	Logger *slog.Logger
	// History overrides history.dsn from the config.
	History HistorySink
}

// Deck is a supervisor built from a Config together with the host reader,
// history sink and refresher that surround it.
type Deck struct {
	cfg       *Config
	sup       *supervisor.Supervisor
	host      *host.Reader
	history   HistorySink
	closeHist bool
	refresher *cron.Refresher
	logger    *slog.Logger
}

// New assembles a Deck. The config must already be validated (LoadConfig does).
func New(c *Config, opts Options) (*Deck, error) {
	if c == nil {
		return nil, errors.New("nil config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg, err := c.Registry()
	if err != nil {
		return nil, err
	}

	runner := process.ExecRunner{}
	units := unit.NewController(runner, logger)
	units.QueryScopes = c.QueryScopes()
	units.ActionScopes = c.ActionScopes()
	units.QueryTimeout = c.Probe.Timeout
	units.ActionTimeout = c.Control.Timeout

	ports, err := detector.New(c.Probe.PortResolver, runner, c.Probe.Timeout, logger)
	if err != nil {
		return nil, err
	}

	d := &Deck{cfg: c, host: host.NewReader(c.Probe.Timeout, logger), logger: logger}
	switch {
	case opts.History != nil:
		d.history = opts.History
	case c.History.DSN != "":
		sink, err := factory.NewSinkFromDSN(c.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("history sink: %w", err)
		}
		d.history, d.closeHist = sink, true
	}

	sup, err := supervisor.New(reg, supervisor.Options{
		Self:         c.Self,
		Units:        units,
		Ports:        ports,
		Memory:       process.NewMemoryInspector(c.Probe.Timeout),
		Launcher:     process.DetachedLauncher{Logger: logger},
		ProbeTimeout: c.Probe.Timeout,
		Concurrency:  c.Probe.Concurrency,
		Grace:        c.Control.Grace,
		LogDir:       c.Control.LogDir,
		Env:          launchEnv(c.Control.Env),
		History:      d.history,
		Logger:       logger,
	})
	if err != nil {
		_ = d.closeHistory()
		return nil, err
	}
	d.sup = sup
	d.refresher = cron.NewRefresher(sup, d.host, c.Probe.Timeout*2, logger)
	return d, nil
}

func launchEnv(shared []string) *env.Env {
	if len(shared) == 0 {
		return nil
	}
	return env.New(shared)
}

func (d *Deck) Descriptors() []Descriptor { return d.sup.Descriptors() }

// ListStatus probes every service, in registry order.
func (d *Deck) ListStatus(ctx context.Context) []Entry { return d.sup.ListStatus(ctx) }

// Status probes one service; false when the name is not registered.
func (d *Deck) Status(ctx context.Context, name string) (Entry, bool) { return d.sup.Probe(ctx, name) }

// PerformAction runs start, stop or restart. It never returns an error;
// refusals and failures are reported in the Result.
func (d *Deck) PerformAction(ctx context.Context, name, action string) Result {
	return d.sup.PerformAction(ctx, name, action)
}

func (d *Deck) Host(ctx context.Context) HostSummary { return d.host.Summary(ctx) }

func (d *Deck) router() (*iapi.Router, error) {
	a := d.cfg.Server.Auth
	var guard *auth.Middleware
	if a.Enabled {
		svc, err := auth.NewService(a.JWTSecret)
		if err != nil {
			return nil, err
		}
		guard = auth.NewMiddleware(svc, a.AdminRole, true, iapi.AdminOnly)
	}
	return iapi.NewRouter(d.sup, d.cfg.Server.BasePath, iapi.Options{Host: d.host, Auth: guard}), nil
}

// Handler returns the REST API rooted at server.base_path, ready to mount in any mux.
func (d *Deck) Handler() (http.Handler, error) {
	r, err := d.router()
	if err != nil {
		return nil, err
	}
	return r.Handler(), nil
}

// RegisterRoutes mounts the REST API on an existing gin group.
func (d *Deck) RegisterRoutes(group *gin.RouterGroup) error {
	r, err := d.router()
	if err != nil {
		return err
	}
	r.Register(group)
	return nil
}

// NewHTTPServer builds the API server for server.listen, with TLS when enabled.
func (d *Deck) NewHTTPServer() (*http.Server, error) {
	h, err := d.Handler()
	if err != nil {
		return nil, err
	}
	tlsCfg, err := svctls.Setup(d.cfg.Server.TLS)
	if err != nil {
		return nil, fmt.Errorf("tls setup: %w", err)
	}
	return iapi.NewServer(d.cfg.Server.Listen, h, tlsCfg), nil
}

// Serve runs srv until it is closed.
func (d *Deck) Serve(srv *http.Server) error { return iapi.Serve(srv, d.logger) }

// StartRefresher schedules periodic probes on metrics.refresh.
func (d *Deck) StartRefresher() error {
	spec := d.cfg.Metrics.Refresh
	if spec == "" {
		return nil
	}
	d.refresher.RunOnce(context.Background())
	return d.refresher.Start(spec)
}

// Close stops the refresher and releases the history sink.
func (d *Deck) Close() error {
	d.refresher.Stop()
	return d.closeHistory()
}

func (d *Deck) closeHistory() error {
	if !d.closeHist {
		return nil
	}
	if c, ok := d.history.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

func MetricsHandler() http.Handler { return metrics.Handler() }

// NewMetricsServer exposes /metrics on addr.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// IssueToken mints a bearer token accepted by the control routes.
func IssueToken(secret, subject, role string, ttl time.Duration) (string, error) {
	svc, err := auth.NewService(secret)
	if err != nil {
		return "", err
	}
	return svc.Issue(subject, role, ttl)
}
