package watch

import "github.com/prometheus/client_golang/prometheus"

var (
	passesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropsight_watch_passes_total",
			Help: "Monitoring passes run, by trigger.",
		},
		[]string{"trigger"},
	)
	zoneOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropsight_watch_zone_outcomes_total",
			Help: "Per-zone pass outcomes.",
		},
		[]string{"outcome"},
	)
	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropsight_watch_alerts_total",
			Help: "Alerts delivered, by kind.",
		},
		[]string{"kind"},
	)
	aggregateScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cropsight_watch_aggregate_score",
			Help: "Weighted aggregate z-score of the last pass.",
		},
	)
	passDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cropsight_watch_pass_duration_seconds",
			Help:    "Wall time of a full monitoring pass.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(
		passesTotal,
		zoneOutcomesTotal,
		alertsTotal,
		aggregateScore,
		passDuration,
	)
}

// Zone outcome labels.
const (
	outcomeRecorded  = "recorded"
	outcomeDuplicate = "duplicate"
	outcomeSkipped   = "skipped"
)
