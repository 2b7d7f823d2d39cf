package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	actionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svcdeck",
			Name:      "action_total",
			Help:      "Control actions performed, by outcome.",
		}, []string{"name", "action", "result"},
	)
	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "svcdeck",
			Name:      "probe_duration_seconds",
			Help:      "Time spent probing a single service.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"kind"},
	)
	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "svcdeck",
			Name:      "service_up",
			Help:      "1 = active, 0 = inactive, -1 = unknown.",
		}, []string{"name"},
	)
	serviceMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "svcdeck",
			Name:      "service_memory_mb",
			Help:      "Resident memory of the service process and its direct children.",
		}, []string{"name"},
	)
	hostMemoryUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "svcdeck",
			Name:      "host_memory_used_percent",
			Help:      "Host memory in use.",
		},
	)
	hostDiskUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "svcdeck",
			Name:      "host_disk_used_percent",
			Help:      "Root filesystem space in use.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{actionTotal, probeDuration, serviceUp, serviceMemory, hostMemoryUsed, hostDiskUsed}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncAction(name, action string, ok bool) {
	if regOK.Load() {
		result := "ok"
		if !ok {
			result = "failed"
		}
		actionTotal.WithLabelValues(name, action, result).Inc()
	}
}

func ObserveProbe(kind string, seconds float64) {
	if regOK.Load() {
		probeDuration.WithLabelValues(kind).Observe(seconds)
	}
}

// SetServiceState records the probed state. Memory is cleared when absent so
// a stopped service does not keep reporting its last value.
func SetServiceState(name, state string, memoryMB *int) {
	if !regOK.Load() {
		return
	}
	var v float64
	switch state {
	case "active":
		v = 1
	case "inactive":
		v = 0
	default:
		v = -1
	}
	serviceUp.WithLabelValues(name).Set(v)
	if memoryMB != nil {
		serviceMemory.WithLabelValues(name).Set(float64(*memoryMB))
	} else {
		serviceMemory.DeleteLabelValues(name)
	}
}

func SetHostUsage(memoryPercent, diskPercent float64) {
	if regOK.Load() {
		hostMemoryUsed.Set(memoryPercent)
		hostDiskUsed.Set(diskPercent)
	}
}
