package detector

import (
	"context"
	"log/slog"
	"time"

	gopsnet "github.com/shirou/gopsutil/v4/net"
)

// ConnLister returns the system's TCP connections. Swappable in tests.
type ConnLister func(ctx context.Context) ([]gopsnet.ConnectionStat, error)

func tcpConnections(ctx context.Context) ([]gopsnet.ConnectionStat, error) {
	return gopsnet.ConnectionsWithContext(ctx, "tcp")
}

// SocketResolver reads the kernel socket table directly. Listeners owned by
// other users may have no pid without elevated privileges.
type SocketResolver struct {
	List    ConnLister
	Timeout time.Duration
	Logger  *slog.Logger
}

func (r *SocketResolver) FindPID(ctx context.Context, port int) (int, bool) {
	if port <= 0 {
		return 0, false
	}
	list := r.List
	if list == nil {
		list = tcpConnections
	}
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()
	conns, err := list(ctx)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Debug("socket table read failed", "port", port, "error", err)
		}
		return 0, false
	}
	pid := lowestListener(conns, port)
	return pid, pid > 0
}

func (r *SocketResolver) Describe() string { return KindSocket }

// lowestListener returns the smallest pid holding a LISTEN socket on port.
// Pre-forked servers share one listener across workers; the lowest pid is
// normally the parent.
func lowestListener(conns []gopsnet.ConnectionStat, port int) int {
	best := 0
	for _, c := range conns {
		if c.Status != "LISTEN" || int(c.Laddr.Port) != port || c.Pid <= 0 {
			continue
		}
		if best == 0 || int(c.Pid) < best {
			best = int(c.Pid)
		}
	}
	return best
}
