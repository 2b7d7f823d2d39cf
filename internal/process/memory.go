package process

import (
	"context"
	"errors"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

const bytesPerMB = 1024 * 1024

// ProcTable is the slice of the OS process table the memory inspector needs.
type ProcTable interface {
	RSS(ctx context.Context, pid int) (uint64, error)
	Children(ctx context.Context, pid int) ([]int, error)
}

// MemoryInspector sums the resident memory of a process and its direct
// children. Only one level of children is expanded.
type MemoryInspector struct {
	Table   ProcTable
	Timeout time.Duration
}

// NewMemoryInspector returns an inspector backed by gopsutil.
func NewMemoryInspector(timeout time.Duration) *MemoryInspector {
	return &MemoryInspector{Table: GopsTable{}, Timeout: timeout}
}

// MemoryMB returns whole megabytes (each process floored separately, then
// summed). ok is false when pid itself cannot be read, typically because it
// exited after being resolved.
func (m *MemoryInspector) MemoryMB(ctx context.Context, pid int) (int, bool) {
	if pid <= 0 {
		return 0, false
	}
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}
	rss, err := m.Table.RSS(ctx, pid)
	if err != nil {
		return 0, false
	}
	total := int(rss / bytesPerMB)
	children, err := m.Table.Children(ctx, pid)
	if err != nil {
		return total, true
	}
	for _, c := range children {
		crss, err := m.Table.RSS(ctx, c)
		if err != nil {
			continue
		}
		total += int(crss / bytesPerMB)
	}
	return total, true
}

// GopsTable reads the process table through gopsutil.
type GopsTable struct{}

func (GopsTable) RSS(ctx context.Context, pid int) (uint64, error) {
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0, err
	}
	mi, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return mi.RSS, nil
}

func (GopsTable) Children(ctx context.Context, pid int) ([]int, error) {
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, err
	}
	kids, err := p.ChildrenWithContext(ctx)
	if err != nil {
		if errors.Is(err, gopsproc.ErrorNoChildren) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]int, 0, len(kids))
	for _, k := range kids {
		out = append(out, int(k.Pid))
	}
	return out, nil
}
