package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/svcdeck/internal/detector"
	"github.com/loykin/svcdeck/internal/env"
	"github.com/loykin/svcdeck/internal/history"
	"github.com/loykin/svcdeck/internal/metrics"
	"github.com/loykin/svcdeck/internal/process"
	"github.com/loykin/svcdeck/internal/registry"
	"github.com/loykin/svcdeck/internal/unit"
)

const historyTimeout = 5 * time.Second

// Options wires the supervisor to its collaborators. Zero values select the
// real OS-backed implementations.
type Options struct {
	// Self names the registry entry hosting this process; it cannot be stopped.
	Self string

	Units    UnitController
	Ports    detector.PortResolver
	Memory   MemoryReader
	Signal   func(pid int) error
	Launcher process.Launcher

	ProbeTimeout time.Duration
	Concurrency  int
	Grace        time.Duration
	LogDir       string
	// Env holds variables shared by every raw launch; nil inherits.
	Env *env.Env

	History history.Sink
	Logger  *slog.Logger

	Sleep func(time.Duration)
	Now   func() time.Time
}

// Supervisor answers status and control requests for a fixed registry.
// It keeps no state between calls.
type Supervisor struct {
	reg         *registry.Registry
	targets     map[string]Target
	self        string
	concurrency int
	history     history.Sink
	logger      *slog.Logger
	now         func() time.Time
}

// New builds a supervisor over reg.
func New(reg *registry.Registry, opts Options) (*Supervisor, error) {
	if reg == nil {
		return nil, fmt.Errorf("nil registry")
	}
	if opts.Self != "" {
		if _, ok := reg.Lookup(opts.Self); !ok {
			return nil, fmt.Errorf("self %q is not a registered service", opts.Self)
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.Grace <= 0 {
		opts.Grace = 2 * time.Second
	}
	if opts.Units == nil {
		opts.Units = unit.NewController(process.ExecRunner{}, opts.Logger)
	}
	if opts.Ports == nil {
		p, err := detector.New(detector.KindAuto, process.ExecRunner{}, opts.ProbeTimeout, opts.Logger)
		if err != nil {
			return nil, err
		}
		opts.Ports = p
	}
	if opts.Memory == nil {
		opts.Memory = process.NewMemoryInspector(opts.ProbeTimeout)
	}
	if opts.Signal == nil {
		opts.Signal = process.Terminate
	}
	if opts.Launcher == nil {
		opts.Launcher = process.DetachedLauncher{Logger: opts.Logger}
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = reg.Len()
	}

	s := &Supervisor{
		reg:         reg,
		targets:     make(map[string]Target, reg.Len()),
		self:        opts.Self,
		concurrency: opts.Concurrency,
		history:     opts.History,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	for _, d := range reg.All() {
		s.targets[d.Name] = newTarget(d, opts)
	}
	return s, nil
}

func newTarget(d registry.Descriptor, opts Options) Target {
	logger := opts.Logger.With("service", d.Name)
	if d.Kind == registry.KindUnit {
		return &unitTarget{desc: d, units: opts.Units, memory: opts.Memory, logger: logger}
	}
	logPath := d.LogFile
	if logPath == "" {
		logPath = process.LogPath(opts.LogDir, d.Name)
	}
	return &rawTarget{
		desc:     d,
		ports:    opts.Ports,
		memory:   opts.Memory,
		signal:   opts.Signal,
		launcher: opts.Launcher,
		grace:    opts.Grace,
		sleep:    opts.Sleep,
		logPath:  logPath,
		env:      opts.Env,
		logger:   logger,
	}
}

// Self returns the protected service name, possibly empty.
func (s *Supervisor) Self() string { return s.self }

// Descriptors returns the registry entries in order.
func (s *Supervisor) Descriptors() []registry.Descriptor { return s.reg.All() }

func (s *Supervisor) Lookup(name string) (registry.Descriptor, bool) { return s.reg.Lookup(name) }

// ListStatus probes every service and returns one entry per registry entry
// in registry order. A failing probe yields StateUnknown for that entry only.
func (s *Supervisor) ListStatus(ctx context.Context) []Entry {
	all := s.reg.All()
	out := make([]Entry, len(all))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, d := range all {
		out[i].Descriptor = d
		g.Go(func() error {
			out[i].Status = s.probe(ctx, d)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Probe returns the status of a single service.
func (s *Supervisor) Probe(ctx context.Context, name string) (Entry, bool) {
	d, ok := s.reg.Lookup(name)
	if !ok {
		return Entry{}, false
	}
	return Entry{Descriptor: d, Status: s.probe(ctx, d)}, true
}

func (s *Supervisor) probe(ctx context.Context, d registry.Descriptor) (st Status) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("probe panicked", "name", d.Name, "panic", r)
			st = Status{State: StateUnknown}
		}
		metrics.ObserveProbe(string(d.Kind), time.Since(start).Seconds())
		metrics.SetServiceState(d.Name, string(st.State), st.MemoryMB)
	}()
	return s.targets[d.Name].Probe(ctx)
}

// PerformAction validates and executes a control request. Unknown names and
// stopping the supervisor's own host are refused before any control attempt.
func (s *Supervisor) PerformAction(ctx context.Context, name, action string) Result {
	d, ok := s.reg.Lookup(name)
	if !ok {
		s.logger.Warn("action on unknown service", "name", name, "action", action)
		return fail(MsgNotFound)
	}
	var res Result
	if name == s.self && action == string(ActionStop) {
		res = fail(MsgCannotStopSelf)
	} else {
		res = s.act(ctx, d, action)
	}
	s.record(ctx, d, action, res)
	return res
}

func (s *Supervisor) act(ctx context.Context, d registry.Descriptor, action string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("action panicked", "name", d.Name, "action", action, "panic", r)
			res = fail(fmt.Sprintf("%s failed", action))
		}
	}()
	return s.targets[d.Name].Act(ctx, action)
}

func (s *Supervisor) record(ctx context.Context, d registry.Descriptor, action string, res Result) {
	label := action
	if _, ok := ParseAction(action); !ok {
		label = "invalid"
	}
	if res.OK {
		s.logger.Info("action performed", "name", d.Name, "action", label, "message", res.Message)
	} else {
		s.logger.Warn("action refused or failed", "name", d.Name, "action", label, "message", res.Message)
	}
	metrics.IncAction(d.Name, label, res.OK)
	if s.history == nil {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	err := s.history.Send(hctx, history.Event{
		Name:       d.Name,
		Kind:       string(d.Kind),
		Action:     label,
		OK:         res.OK,
		Message:    res.Message,
		OccurredAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("history sink failed", "name", d.Name, "error", err)
	}
}
