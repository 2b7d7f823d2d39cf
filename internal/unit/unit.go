// Package unit drives an external unit-control tool (systemctl) under an
// ordered list of privilege scopes.
package unit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/svcdeck/internal/process"
)

var (
	// ErrQueryFailed means no scope reported the unit active and at least one
	// scope could not be queried at all.
	ErrQueryFailed = errors.New("unit state query failed")
	// ErrAllScopesFailed means every control scope rejected the command.
	ErrAllScopesFailed = errors.New("all control scopes failed")
	ErrNoScopes        = errors.New("no scopes configured")
)

const (
	stateActive   = "active"
	defaultQuery  = 5 * time.Second
	defaultAction = 15 * time.Second
)

// Scope is the command prefix used to reach the tool, e.g. ["systemctl", "--user"]
// or ["sudo", "systemctl"].
type Scope []string

func (s Scope) String() string { return strings.Join(s, " ") }

func (s Scope) argv(args ...string) (string, []string) {
	out := make([]string, 0, len(s)-1+len(args))
	out = append(out, s[1:]...)
	out = append(out, args...)
	return s[0], out
}

// DefaultQueryScopes queries the user manager first, then the system manager.
func DefaultQueryScopes() []Scope {
	return []Scope{{"systemctl", "--user"}, {"systemctl"}}
}

// DefaultActionScopes commands the user manager first, then escalates with sudo.
func DefaultActionScopes() []Scope {
	return []Scope{{"systemctl", "--user"}, {"sudo", "systemctl"}}
}

// ParseScopes converts configured string lists into scopes.
func ParseScopes(raw [][]string) ([]Scope, error) {
	if len(raw) == 0 {
		return nil, ErrNoScopes
	}
	out := make([]Scope, 0, len(raw))
	for i, r := range raw {
		var s Scope
		for _, a := range r {
			if a = strings.TrimSpace(a); a != "" {
				s = append(s, a)
			}
		}
		if len(s) == 0 {
			return nil, fmt.Errorf("scope %d is empty", i)
		}
		out = append(out, s)
	}
	return out, nil
}

// State is the outcome of an is-active query across scopes.
type State struct {
	Active bool
	// Scope is the scope that reported active; nil otherwise.
	Scope Scope
	// Raw is the last state text the tool printed (active, inactive, failed, ...).
	Raw string
}

// Controller runs queries and commands against units.
type Controller struct {
	QueryScopes   []Scope
	ActionScopes  []Scope
	Runner        process.Runner
	QueryTimeout  time.Duration
	ActionTimeout time.Duration
	Logger        *slog.Logger
}

// NewController returns a controller with the default scopes and timeouts.
func NewController(runner process.Runner, logger *slog.Logger) *Controller {
	if runner == nil {
		runner = process.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		QueryScopes:   DefaultQueryScopes(),
		ActionScopes:  DefaultActionScopes(),
		Runner:        runner,
		QueryTimeout:  defaultQuery,
		ActionTimeout: defaultAction,
		Logger:        logger,
	}
}

func (c *Controller) run(ctx context.Context, timeout time.Duration, s Scope, args ...string) (process.Output, error) {
	if len(s) == 0 {
		return process.Output{}, ErrNoScopes
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	name, argv := s.argv(args...)
	return c.Runner.Run(ctx, name, argv...)
}

// IsActive asks each query scope in order whether unit is active. A non-zero
// exit with a state on stdout is an ordinary "not active" answer. When no
// scope says active and any scope failed to answer, ErrQueryFailed is
// returned together with whatever partial state was observed.
func (c *Controller) IsActive(ctx context.Context, unit string) (State, error) {
	if len(c.QueryScopes) == 0 {
		return State{}, ErrNoScopes
	}
	var st State
	var failed error
	for _, s := range c.QueryScopes {
		out, err := c.run(ctx, c.QueryTimeout, s, "is-active", unit)
		if err != nil {
			c.log().Debug("is-active failed", "unit", unit, "scope", s.String(), "error", err)
			failed = err
			continue
		}
		raw := strings.TrimSpace(out.Stdout)
		if raw == stateActive {
			return State{Active: true, Scope: s, Raw: raw}, nil
		}
		if raw != "" {
			st.Raw = raw
		}
	}
	if failed != nil {
		return st, fmt.Errorf("%w: %w", ErrQueryFailed, failed)
	}
	return st, nil
}

// MainPID returns the unit's main pid as reported through scope. Zero means
// the tool reported no main process.
func (c *Controller) MainPID(ctx context.Context, s Scope, unit string) (int, error) {
	out, err := c.run(ctx, c.QueryTimeout, s, "show", unit, "--property=MainPID")
	if err != nil {
		return 0, err
	}
	if out.ExitCode != 0 {
		return 0, fmt.Errorf("show %s: exit status %d", unit, out.ExitCode)
	}
	return ParseMainPID(out.Stdout)
}

// ParseMainPID parses `MainPID=<n>` show output.
func ParseMainPID(out string) (int, error) {
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok || k != "MainPID" {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("parse MainPID %q: %w", v, err)
		}
		return pid, nil
	}
	return 0, errors.New("MainPID not present in output")
}

// Command runs `<action> <unit>` under each action scope until one exits 0
// and returns that scope. Cancellation of ctx does not abort a command that
// has already been issued; each attempt is bounded by ActionTimeout only.
func (c *Controller) Command(ctx context.Context, action, unit string) (Scope, error) {
	if len(c.ActionScopes) == 0 {
		return nil, ErrNoScopes
	}
	ctx = context.WithoutCancel(ctx)
	for _, s := range c.ActionScopes {
		out, err := c.run(ctx, c.ActionTimeout, s, action, unit)
		if err == nil && out.ExitCode == 0 {
			return s, nil
		}
		c.log().Debug("unit command failed", "unit", unit, "action", action, "scope", s.String(),
			"exit", out.ExitCode, "error", err)
	}
	return nil, ErrAllScopesFailed
}

func (c *Controller) log() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
