// Package metrics holds the Prometheus collectors shared by the reader engine
// and its transports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cs108_frames_sent_total",
		Help: "Total number of command frames written to the transport",
	}, []string{"kind"})

	FramesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cs108_frames_received_total",
		Help: "Total number of notification frames decoded",
	}, []string{"kind"})

	DecodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cs108_decode_errors_total",
		Help: "Total number of inbound frames dropped as malformed",
	}, []string{"reason"})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cs108_events_total",
		Help: "Total number of domain events emitted",
	}, []string{"type"})

	EventDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cs108_event_drops_total",
		Help: "Total number of domain events not delivered to a subscriber",
	}, []string{"type", "reason"})

	ConfigurationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cs108_configurations_total",
		Help: "Total number of mode configuration sequences by outcome",
	}, []string{"mode", "result"})

	ConfigurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cs108_configuration_duration_seconds",
		Help:    "Duration of successful mode configuration sequences",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"mode"})

	DeviceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cs108_device_errors_total",
		Help: "Total number of error notifications reported by the reader",
	}, []string{"code"})

	LocateFilteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cs108_locate_filtered_total",
		Help: "Total number of locate tag reports suppressed by the target EPC filter",
	})

	BatteryMillivolts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cs108_battery_millivolts",
		Help: "Last reported battery voltage",
	}, []string{"reader"})

	RelayReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cs108_relay_reconnects_total",
		Help: "Total number of relay transport link attempts by outcome",
	}, []string{"transport", "result"})
)

// IncEventDrop records an event that a subscriber did not receive.
func IncEventDrop(eventType, reason string) {
	if eventType == "" {
		eventType = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	EventDropsTotal.WithLabelValues(eventType, reason).Inc()
}

// ObserveConfiguration records the outcome of a configuration sequence.
func ObserveConfiguration(mode, result string, seconds float64) {
	ConfigurationsTotal.WithLabelValues(mode, result).Inc()
	if result == "ok" {
		ConfigurationSeconds.WithLabelValues(mode).Observe(seconds)
	}
}
