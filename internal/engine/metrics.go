package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	promreg "github.com/streamwatch/streamwatch/internal/pkg/prometheus"
)

var (
	metricTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamwatch_engine_ticks_total",
		Help: "Execution loop ticks completed.",
	})
	metricChecksDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamwatch_engine_checks_dispatched_total",
		Help: "Check tasks dispatched for due schedules.",
	})
	metricDownloadsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamwatch_engine_downloads_started_total",
		Help: "Checks that observed a download in progress.",
	})
	metricLaunchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamwatch_engine_launch_failures_total",
		Help: "Browser launches that failed and skipped a dispatch.",
	})
	metricSchedules = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "streamwatch_engine_schedules",
		Help: "Schedules currently held by the engine.",
	})
)

func init() {
	promreg.GetRegistry().MustRegister(
		metricTicks,
		metricChecksDispatched,
		metricDownloadsStarted,
		metricLaunchFailures,
		metricSchedules,
	)
}
