// Package metrics exposes update-loop and subscription counters via
// github.com/prometheus/client_golang, the way the rest of the
// ecosystem pack instruments request handling: a package-level
// registry of counters/gauges/histograms, wired into pkg/introspect's
// HTTP surface through promhttp.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reactree"

var (
	// PassesTotal counts every completed update-loop pass.
	PassesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "update_passes_total",
		Help:      "Total number of completed update-loop passes.",
	})

	// PassDuration observes the wall time of each update-loop pass.
	PassDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "update_pass_duration_seconds",
		Help:      "Duration of each update-loop pass.",
		Buckets:   prometheus.DefBuckets,
	})

	// DispatchedCallbacksTotal counts subscription callbacks invoked
	// by the update loop, across all three snapshots.
	DispatchedCallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatched_callbacks_total",
		Help:      "Total number of subscription callbacks dispatched.",
	})

	// ActiveSubscriptions reports the live subscription count across
	// all three snapshot indexes.
	ActiveSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_subscriptions",
		Help:      "Number of currently live subscriptions.",
	})

	// ActivePlugins reports the size of the current plug-in roster.
	ActivePlugins = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_plugins",
		Help:      "Number of plug-in instances currently mounted.",
	})

	// PluginFailuresTotal counts plug-in Init/UpdateConfig failures.
	PluginFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "plugin_failures_total",
		Help:      "Total number of plug-in load or update failures.",
	})

	// CommandInvocationsTotal counts registered-command invocations.
	CommandInvocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "command_invocations_total",
		Help:      "Total number of command invocations, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		PassesTotal,
		PassDuration,
		DispatchedCallbacksTotal,
		ActiveSubscriptions,
		ActivePlugins,
		PluginFailuresTotal,
		CommandInvocationsTotal,
	)
}

// Timer starts a PassDuration observation, returned as a func to call
// when the pass completes.
func Timer() func() {
	start := time.Now()
	return func() {
		PassDuration.Observe(time.Since(start).Seconds())
	}
}
