package cron

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loykin/svcdeck/internal/host"
	"github.com/loykin/svcdeck/internal/metrics"
	"github.com/loykin/svcdeck/internal/supervisor"
)

// parser accepts standard five-field specs, an optional seconds field and
// descriptors such as "@every 30s".
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a refresh schedule.
func ParseSchedule(spec string) (cron.Schedule, error) {
	s, err := parser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return s, nil
}

// Lister is the part of the supervisor the refresher drives.
type Lister interface {
	ListStatus(ctx context.Context) []supervisor.Entry
}

// HostReader produces the host summary.
type HostReader interface {
	Summary(ctx context.Context) host.Summary
}

// Refresher periodically probes every service and the host so the
// Prometheus gauges stay current between page loads. Nothing is stored.
type Refresher struct {
	sup     Lister
	host    HostReader
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	sched   *cron.Cron
	entryID cron.EntryID
}

// NewRefresher builds a refresher; timeout bounds one refresh run.
func NewRefresher(sup Lister, h HostReader, timeout time.Duration, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{sup: sup, host: h, timeout: timeout, logger: logger}
}

// RunOnce performs a single refresh.
func (r *Refresher) RunOnce(ctx context.Context) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	// ListStatus updates the per-service gauges itself.
	entries := r.sup.ListStatus(ctx)
	if r.host != nil {
		s := r.host.Summary(ctx)
		metrics.SetHostUsage(s.MemoryUsedPercent, s.DiskUsedPercent)
	}
	r.logger.Debug("status refreshed", "services", len(entries))
}

// Start schedules RunOnce. Overlapping runs are skipped.
func (r *Refresher) Start(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sched != nil {
		return fmt.Errorf("refresher already started")
	}
	if _, err := ParseSchedule(spec); err != nil {
		return err
	}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	id, err := c.AddFunc(spec, func() { r.RunOnce(context.Background()) })
	if err != nil {
		return fmt.Errorf("failed to schedule refresher: %w", err)
	}
	r.sched, r.entryID = c, id
	c.Start()
	r.logger.Info("status refresher scheduled", "schedule", spec)
	return nil
}

// Next reports the next scheduled run; zero when not started.
func (r *Refresher) Next() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sched == nil {
		return time.Time{}
	}
	return r.sched.Entry(r.entryID).Next
}

// Stop halts scheduling and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	c := r.sched
	r.sched = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.logger.Info("status refresher stopped")
}
