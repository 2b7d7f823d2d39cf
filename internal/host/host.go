// Package host summarises machine-wide memory and root filesystem usage.
package host

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

const (
	mib = 1024 * 1024
	gib = 1024 * 1024 * 1024
)

// Summary is what the services page shows next to the service table.
type Summary struct {
	MemoryTotalMB     uint64  `json:"memory_total_mb"`
	MemoryUsedMB      uint64  `json:"memory_used_mb"`
	MemoryAvailableMB uint64  `json:"memory_available_mb"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	DiskPath          string  `json:"disk_path"`
	DiskTotalGB       float64 `json:"disk_total_gb"`
	DiskUsedGB        float64 `json:"disk_used_gb"`
	DiskFreeGB        float64 `json:"disk_free_gb"`
	DiskUsedPercent   float64 `json:"disk_used_percent"`
}

// Sources are the gopsutil readers; replaced in tests.
type Sources struct {
	Memory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	Disk   func(ctx context.Context, path string) (*disk.UsageStat, error)
}

// Reader collects a Summary. Any failing half is reported as zeros.
type Reader struct {
	Path    string
	Timeout time.Duration
	Sources Sources
	Logger  *slog.Logger
}

// NewReader reads memory and the filesystem holding "/".
func NewReader(timeout time.Duration, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		Path:    "/",
		Timeout: timeout,
		Sources: Sources{Memory: mem.VirtualMemoryWithContext, Disk: disk.UsageWithContext},
		Logger:  logger,
	}
}

func (r *Reader) Summary(ctx context.Context) Summary {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	s := Summary{DiskPath: r.Path}
	if vm, err := r.Sources.Memory(ctx); err == nil && vm != nil {
		s.MemoryTotalMB = vm.Total / mib
		s.MemoryUsedMB = vm.Used / mib
		s.MemoryAvailableMB = vm.Available / mib
		s.MemoryUsedPercent = round1(vm.UsedPercent)
	} else if r.Logger != nil {
		r.Logger.Debug("host memory read failed", "error", err)
	}
	if du, err := r.Sources.Disk(ctx, r.Path); err == nil && du != nil {
		s.DiskTotalGB = round1(float64(du.Total) / gib)
		s.DiskUsedGB = round1(float64(du.Used) / gib)
		s.DiskFreeGB = round1(float64(du.Free) / gib)
		s.DiskUsedPercent = round1(du.UsedPercent)
	} else if r.Logger != nil {
		r.Logger.Debug("host disk read failed", "path", r.Path, "error", err)
	}
	return s
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
