package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler metrics
	schedulerTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_scheduler_ticks_total",
		Help: "Total playback clock ticks processed",
	}, []string{"source"})

	schedulerSwitchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_scheduler_switches_total",
		Help: "Total narration playback switches",
	}, []string{"track"})

	schedulerSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_scheduler_skips_total",
		Help: "Narrations skipped during scheduling",
	}, []string{"reason"})

	activeNarration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playback_active_narration",
		Help: "Whether a narration is currently active (1) or not (0)",
	})

	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "playback_tick_duration_seconds",
		Help:    "Time spent evaluating a single scheduler tick",
		Buckets: prometheus.ExponentialBuckets(0.000001, 10, 8), // 1µs to 10s
	})

	// Channel pool metrics
	channelsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playback_channels_open",
		Help: "Audio channels currently held by the pool",
	})

	autoplayRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_autoplay_retries_total",
		Help: "Deferred playback retries after an autoplay refusal",
	})

	// Registry metrics
	snapshotReplacementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_snapshot_replacements_total",
		Help: "Full-replacement snapshots accepted per registry",
	}, []string{"registry"})

	registryEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "registry_entries",
		Help: "Entries held per registry",
	}, []string{"registry"})

	// Media probe metrics
	probesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_probes_total",
		Help: "Audio duration probes by outcome",
	}, []string{"outcome"})

	probeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "media_probe_duration_seconds",
		Help:    "Wall time of audio duration probes",
		Buckets: prometheus.DefBuckets,
	})
)

// IncSchedulerTick counts one processed clock tick.
func IncSchedulerTick(source string) {
	schedulerTicksTotal.WithLabelValues(source).Inc()
}

// IncSwitch counts a playback switch on the given track.
func IncSwitch(track string) {
	schedulerSwitchesTotal.WithLabelValues(track).Inc()
}

// IncSkip counts a narration skipped during scheduling.
func IncSkip(reason string) {
	schedulerSkipsTotal.WithLabelValues(reason).Inc()
}

// SetActiveNarration records whether any narration is active.
func SetActiveNarration(active bool) {
	if active {
		activeNarration.Set(1)
	} else {
		activeNarration.Set(0)
	}
}

// ObserveTickDuration records how long a tick evaluation took.
func ObserveTickDuration(seconds float64) {
	tickDuration.Observe(seconds)
}

// SetChannelsOpen records the pool size.
func SetChannelsOpen(count int) {
	channelsOpen.Set(float64(count))
}

// IncAutoplayRetry counts a deferred playback retry.
func IncAutoplayRetry() {
	autoplayRetriesTotal.Inc()
}

// IncSnapshotReplacement counts a registry snapshot replacement.
func IncSnapshotReplacement(registry string) {
	snapshotReplacementsTotal.WithLabelValues(registry).Inc()
}

// SetRegistryEntries records the size of a registry after replacement.
func SetRegistryEntries(registry string, count int) {
	registryEntries.WithLabelValues(registry).Set(float64(count))
}

// ObserveProbe records the outcome and duration of a duration probe.
func ObserveProbe(outcome string, seconds float64) {
	probesTotal.WithLabelValues(outcome).Inc()
	probeDuration.Observe(seconds)
}
