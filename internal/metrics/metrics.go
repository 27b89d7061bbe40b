// Package metrics is the Prometheus instrumentation surface for the
// reader/scheduler/HTTP layers, grounded on tomtom215-cartographus's
// internal/metrics package — a flat var block of promauto collectors
// plus small Record*/Set* helpers callers use instead of touching
// prometheus types directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TitlesPlayed counts every title the scheduler hands to a decoder,
	// split by how it was chosen — spec.md §4.3/§4.4's favplay-biased vs.
	// plain walk.
	TitlesPlayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixplay_titles_played_total",
			Help: "Total number of titles started by the scheduler",
		},
		[]string{"source"}, // "favplay", "walk", "stream"
	)

	// TitleSkips counts manual skips to the next or previous title,
	// split by direction — recorded by the reader's cmdSkip.
	TitleSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixplay_title_skips_total",
			Help: "Total number of title skips",
		},
		[]string{"direction"}, // "forward", "backward"
	)

	// DecoderRestarts counts restarts of the foreground/background
	// mpg123 pair, split by cause. The reader records only spec.md
	// §4.9's watchdog recovery; ordinary track-end swaps are not counted.
	DecoderRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixplay_decoder_restarts_total",
			Help: "Total number of decoder process restarts",
		},
		[]string{"cause"}, // "watchdog"
	)

	// WatchdogTrips counts every time the reader's watchdog reaches
	// WatchdogTimeout and forces a decoder restart — spec.md §4.9 (C12).
	WatchdogTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mixplay_watchdog_trips_total",
			Help: "Total number of watchdog timeouts",
		},
	)

	// ActiveClients tracks how many HTTP update-subscription connections
	// (clientid == -1) are currently open — spec.md §4.10.
	ActiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mixplay_active_clients",
			Help: "Current number of open update-subscription connections",
		},
	)

	// CommandQueueRejections counts Register.Post calls that returned
	// ErrBusy — spec.md §4.8's single-slot register backpressure.
	CommandQueueRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mixplay_command_queue_rejections_total",
			Help: "Total number of commands rejected because the register was busy",
		},
	)

	// CommandDuration tracks how long handleCommand spends per base
	// command — split by the dispatch's own Code.Base() values.
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mixplay_command_duration_seconds",
			Help:    "Duration of command handling in the reader loop",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
)

// RecordTitlePlayed increments TitlesPlayed for the given selection
// source.
func RecordTitlePlayed(source string) {
	TitlesPlayed.WithLabelValues(source).Inc()
}

// RecordSkip increments TitleSkips for the given direction.
func RecordSkip(direction string) {
	TitleSkips.WithLabelValues(direction).Inc()
}

// RecordDecoderRestart increments DecoderRestarts for the given cause.
func RecordDecoderRestart(cause string) {
	DecoderRestarts.WithLabelValues(cause).Inc()
}

// RecordWatchdogTrip increments WatchdogTrips.
func RecordWatchdogTrip() {
	WatchdogTrips.Inc()
}

// RecordCommandRejected increments CommandQueueRejections.
func RecordCommandRejected() {
	CommandQueueRejections.Inc()
}

// ObserveCommandDuration records how long a command took to handle.
func ObserveCommandDuration(command string, d time.Duration) {
	CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ClientConnected/ClientDisconnected track ActiveClients around an
// update-subscription connection's lifetime.
func ClientConnected()    { ActiveClients.Inc() }
func ClientDisconnected() { ActiveClients.Dec() }
