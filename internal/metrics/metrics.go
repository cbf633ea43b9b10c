// Package metrics exposes Prometheus collectors for gauge ingestion and
// river-mile maintenance.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riverflow_readings_ingested_total",
			Help: "Gauge readings written to the store",
		},
		[]string{"source"},
	)

	ValuesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riverflow_values_discarded_total",
			Help: "Sensor values dropped for falling outside the physical range",
		},
		[]string{"field"},
	)

	UpstreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riverflow_upstream_fetch_failures_total",
			Help: "Failed requests to upstream water-data sources",
		},
		[]string{"source"},
	)

	FrequencyTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riverflow_frequency_transitions_total",
			Help: "Stations moved between polling cadences",
		},
		[]string{"to"},
	)

	HighFrequencyStations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riverflow_high_frequency_stations",
			Help: "Stations currently polled at the high-frequency cadence",
		},
	)

	PassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riverflow_ingestion_pass_duration_seconds",
			Help:    "Duration of an ingestion pass",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"cadence"},
	)

	MilesCorrected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riverflow_access_point_miles_corrected_total",
			Help: "Access point miles replaced by a mile-marker reference",
		},
	)
)
