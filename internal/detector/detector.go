package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loykin/svcdeck/internal/process"
)

// ErrNotFound is returned when no process listens on the requested port.
var ErrNotFound = errors.New("no listener on port")

// PortResolver maps a TCP listen port to the pid that owns the socket.
// Implementations never block longer than their configured timeout and
// must be safe for concurrent use.
type PortResolver interface {
	// FindPID returns the owning pid or ok=false when nothing is found or the
	// lookup could not be performed.
	FindPID(ctx context.Context, port int) (pid int, ok bool)
	// Describe returns a human-readable description of the strategy.
	Describe() string
}

// Resolver names accepted by New.
const (
	KindAuto   = "auto"
	KindSS     = "ss"
	KindSocket = "socket"
)

// Chain tries each resolver in order; the first hit wins.
type Chain []PortResolver

func (c Chain) FindPID(ctx context.Context, port int) (int, bool) {
	for _, r := range c {
		if ctx.Err() != nil {
			return 0, false
		}
		if pid, ok := r.FindPID(ctx, port); ok {
			return pid, true
		}
	}
	return 0, false
}

func (c Chain) Describe() string {
	parts := make([]string, 0, len(c))
	for _, r := range c {
		parts = append(parts, r.Describe())
	}
	return "chain:" + strings.Join(parts, ",")
}

// New builds the resolver named by kind. An empty kind means auto.
func New(kind string, runner process.Runner, timeout time.Duration, logger *slog.Logger) (PortResolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ss := &SSResolver{Runner: runner, Timeout: timeout, Logger: logger}
	sock := &SocketResolver{Timeout: timeout, Logger: logger}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindAuto:
		return Chain{ss, sock}, nil
	case KindSS:
		return ss, nil
	case KindSocket:
		return sock, nil
	default:
		return nil, fmt.Errorf("unknown port resolver %q", kind)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
