package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcdeck/internal/host"
	"github.com/loykin/svcdeck/internal/supervisor"
)

type countingLister struct {
	calls atomic.Int32
	delay time.Duration
}

func (c *countingLister) ListStatus(context.Context) []supervisor.Entry {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return []supervisor.Entry{{Status: supervisor.Status{State: supervisor.StateActive}}}
}

type fixedHost struct{ calls atomic.Int32 }

func (f *fixedHost) Summary(context.Context) host.Summary {
	f.calls.Add(1)
	return host.Summary{MemoryUsedPercent: 10, DiskUsedPercent: 20}
}

func TestParseSchedule(t *testing.T) {
	for _, ok := range []string{"@every 30s", "*/5 * * * *", "0 */1 * * * *", "@hourly"} {
		_, err := ParseSchedule(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "every 30s", "@every nope"} {
		_, err := ParseSchedule(bad)
		assert.Error(t, err, bad)
	}
}

func TestRunOnce(t *testing.T) {
	l := &countingLister{}
	h := &fixedHost{}
	NewRefresher(l, h, time.Second, nil).RunOnce(context.Background())
	assert.Equal(t, int32(1), l.calls.Load())
	assert.Equal(t, int32(1), h.calls.Load())
}

func TestStartStop(t *testing.T) {
	l := &countingLister{}
	r := NewRefresher(l, nil, time.Second, nil)
	require.NoError(t, r.Start("@every 1s"))
	assert.Error(t, r.Start("@every 1s"))
	assert.False(t, r.Next().IsZero())

	require.Eventually(t, func() bool { return l.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	r.Stop()
	assert.True(t, r.Next().IsZero())
	r.Stop()
}

func TestStartRejectsBadSpec(t *testing.T) {
	r := NewRefresher(&countingLister{}, nil, 0, nil)
	assert.Error(t, r.Start("whenever"))
}
