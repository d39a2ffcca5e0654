// Package metrics provides Prometheus metrics for the churn service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks scoring runs by trigger and status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "churn",
			Subsystem: "runs",
			Name:      "total",
			Help:      "Total number of scoring runs by trigger and status",
		},
		[]string{"trigger", "status"},
	)

	// RunDuration tracks scoring run duration in seconds
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "churn",
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Duration of scoring runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// AssessmentsTotal tracks assessments produced by tier
	AssessmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "churn",
			Subsystem: "scoring",
			Name:      "assessments_total",
			Help:      "Total number of risk assessments produced by tier",
		},
		[]string{"tier"},
	)

	// PortfolioSize tracks the universe size of the most recent run
	PortfolioSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "churn",
			Subsystem: "scoring",
			Name:      "portfolio_size",
			Help:      "Number of POS scored in the most recent run",
		},
	)

	// OwnersWithCritical tracks owners holding Urgent POS in the most recent run
	OwnersWithCritical = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "churn",
			Subsystem: "aggregation",
			Name:      "owners_with_critical",
			Help:      "Number of owners with at least one Urgent POS in the most recent run",
		},
	)

	// SourceWarningsTotal tracks unavailable signal sources
	SourceWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "churn",
			Subsystem: "sources",
			Name:      "warnings_total",
			Help:      "Total number of source unavailable warnings",
		},
		[]string{"source"},
	)

	// KafkaEventsPublished tracks alert events published to Kafka
	KafkaEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "churn",
			Subsystem: "kafka",
			Name:      "events_published_total",
			Help:      "Total number of alert events published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "churn",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// DatabaseQueryDuration tracks database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "churn",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	// ReportRenders tracks report renders by format
	ReportRenders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "churn",
			Subsystem: "reports",
			Name:      "renders_total",
			Help:      "Total number of report renders by format",
		},
		[]string{"format"},
	)
)

// RecordRun records a completed or failed scoring run
func RecordRun(trigger, status string, durationSeconds float64) {
	RunsTotal.WithLabelValues(trigger, status).Inc()
	RunDuration.Observe(durationSeconds)
}

// RecordAssessment records one produced assessment
func RecordAssessment(tier string) {
	AssessmentsTotal.WithLabelValues(tier).Inc()
}

// RecordSourceWarning records a source that could not be read
func RecordSourceWarning(source string) {
	SourceWarningsTotal.WithLabelValues(source).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaEventsPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

// RecordReportRender records a report render
func RecordReportRender(format string) {
	ReportRenders.WithLabelValues(format).Inc()
}
