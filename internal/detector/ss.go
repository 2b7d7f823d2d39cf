package detector

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/svcdeck/internal/process"
)

// SSResolver asks iproute2's ss for the listening socket.
type SSResolver struct {
	Runner  process.Runner
	Timeout time.Duration
	Logger  *slog.Logger
}

func (r *SSResolver) FindPID(ctx context.Context, port int) (int, bool) {
	if port <= 0 {
		return 0, false
	}
	runner := r.Runner
	if runner == nil {
		runner = process.ExecRunner{}
	}
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()
	out, err := runner.Run(ctx, "ss", "-tlnp", "sport = :"+strconv.Itoa(port))
	if err != nil {
		if r.Logger != nil {
			r.Logger.Debug("ss lookup failed", "port", port, "error", err)
		}
		return 0, false
	}
	pid, err := ParseSS(out.Stdout, port)
	if err != nil {
		return 0, false
	}
	return pid, true
}

func (r *SSResolver) Describe() string { return KindSS }

// ParseSS extracts the pid from `ss -tlnp` output. The first line whose local
// address ends in :port and carries a users:(("name",pid=N,fd=M)) tuple wins.
func ParseSS(out string, port int) (int, error) {
	suffix := ":" + strconv.Itoa(port)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || !strings.HasSuffix(fields[3], suffix) {
			continue
		}
		if pid, ok := pidToken(line); ok {
			return pid, nil
		}
	}
	return 0, ErrNotFound
}

func pidToken(line string) (int, bool) {
	i := strings.Index(line, "pid=")
	if i < 0 {
		return 0, false
	}
	rest := line[i+len("pid="):]
	end := strings.IndexFunc(rest, func(c rune) bool { return c < '0' || c > '9' })
	if end >= 0 {
		rest = rest[:end]
	}
	pid, err := strconv.Atoi(rest)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
