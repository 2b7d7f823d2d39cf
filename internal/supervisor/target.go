package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/svcdeck/internal/detector"
	"github.com/loykin/svcdeck/internal/env"
	"github.com/loykin/svcdeck/internal/process"
	"github.com/loykin/svcdeck/internal/registry"
	"github.com/loykin/svcdeck/internal/unit"
)

// Target probes and controls one service. There is one implementation per
// registry kind.
type Target interface {
	Probe(ctx context.Context) Status
	Act(ctx context.Context, action string) Result
}

// MemoryReader reports resident memory in MB for a pid.
type MemoryReader interface {
	MemoryMB(ctx context.Context, pid int) (int, bool)
}

// UnitController is the subset of unit.Controller used by unit targets.
type UnitController interface {
	IsActive(ctx context.Context, unit string) (unit.State, error)
	MainPID(ctx context.Context, s unit.Scope, unit string) (int, error)
	Command(ctx context.Context, action, unit string) (unit.Scope, error)
}

type unitTarget struct {
	desc   registry.Descriptor
	units  UnitController
	memory MemoryReader
	logger *slog.Logger
}

func (t *unitTarget) Probe(ctx context.Context) Status {
	st, err := t.units.IsActive(ctx, t.desc.Unit)
	if !st.Active {
		detail := ""
		if st.Raw != "" && st.Raw != string(StateInactive) {
			detail = st.Raw
		}
		if err != nil {
			t.logger.Debug("unit probe failed", "name", t.desc.Name, "unit", t.desc.Unit, "error", err)
			return Status{State: StateUnknown, Detail: detail}
		}
		return Status{State: StateInactive, Detail: detail}
	}
	out := Status{State: StateActive}
	pid, err := t.units.MainPID(ctx, st.Scope, t.desc.Unit)
	if err != nil || pid <= 0 {
		return out
	}
	out.PID = pid
	if mb, ok := t.memory.MemoryMB(ctx, pid); ok {
		out.MemoryMB = &mb
	}
	return out
}

func (t *unitTarget) Act(ctx context.Context, action string) Result {
	a, ok := ParseAction(action)
	if !ok {
		return fail(MsgInvalidAction)
	}
	s, err := t.units.Command(ctx, string(a), t.desc.Unit)
	if err != nil {
		return fail(fmt.Sprintf("%s failed", a))
	}
	t.logger.Debug("unit command accepted", "name", t.desc.Name, "action", a, "scope", s.String())
	return Result{OK: true, Message: fmt.Sprintf("%s OK", a)}
}

type rawTarget struct {
	desc     registry.Descriptor
	ports    detector.PortResolver
	memory   MemoryReader
	signal   func(pid int) error
	launcher process.Launcher
	grace    time.Duration
	sleep    func(time.Duration)
	logPath  string
	env      *env.Env
	logger   *slog.Logger
}

func (t *rawTarget) Probe(ctx context.Context) Status {
	pid, ok := t.ports.FindPID(ctx, t.desc.Port)
	if !ok {
		return Status{State: StateInactive}
	}
	out := Status{State: StateActive, PID: pid}
	if mb, ok := t.memory.MemoryMB(ctx, pid); ok {
		out.MemoryMB = &mb
	}
	return out
}

func (t *rawTarget) Act(ctx context.Context, action string) Result {
	a, ok := ParseAction(action)
	if !ok {
		return fail(MsgInvalidAction)
	}
	switch a {
	case ActionStop:
		pid, found := t.ports.FindPID(ctx, t.desc.Port)
		if !found {
			return fail(MsgNotRunning)
		}
		if err := t.signal(pid); err != nil {
			return fail(err.Error())
		}
		return Result{OK: true, Message: fmt.Sprintf("Sent SIGTERM to %d", pid)}
	case ActionRestart:
		if pid, found := t.ports.FindPID(ctx, t.desc.Port); found {
			if err := t.signal(pid); err != nil {
				t.logger.Debug("restart signal failed", "name", t.desc.Name, "pid", pid, "error", err)
			} else {
				t.sleep(t.grace)
			}
		}
	}
	pid, err := t.launcher.Launch(process.LaunchRequest{
		Name:    t.desc.Name,
		WorkDir: t.desc.Launch.WorkDir,
		Command: t.desc.Launch.Command,
		LogPath: t.logPath,
		Env:     t.launchEnv(),
	})
	if err != nil {
		t.logger.Warn("launch failed", "name", t.desc.Name, "error", err)
		return fail(err.Error())
	}
	t.logger.Debug("launched", "name", t.desc.Name, "pid", pid, "log", t.logPath)
	return Result{OK: true, Message: fmt.Sprintf("%s initiated", a)}
}

// launchEnv is nil (inherit) unless shared or per-service variables are set.
func (t *rawTarget) launchEnv() []string {
	if t.env == nil && len(t.desc.Launch.Env) == 0 {
		return nil
	}
	e := t.env
	if e == nil {
		e = env.New(nil)
	}
	return e.Merge(t.desc.Launch.Env)
}
