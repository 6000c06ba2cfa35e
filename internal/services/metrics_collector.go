package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/pkg/models"
)

// MetricsCollector exposes recommendation and training metrics to Prometheus.
// A nil *MetricsCollector is valid and records nothing.
type MetricsCollector struct {
	recommendationRequests *prometheus.CounterVec
	recommendationLatency  prometheus.Histogram
	recommendationsServed  *prometheus.CounterVec
	popularityFallbacks    prometheus.Counter
	cacheLookups           *prometheus.CounterVec
	interactionsTracked    *prometheus.CounterVec
	trainingRuns           *prometheus.CounterVec
	trainingDuration       prometheus.Histogram
	algorithmFailures      *prometheus.CounterVec
	modelVersion           prometheus.Gauge
}

func NewMetricsCollector(registerer prometheus.Registerer, logger *logrus.Logger) *MetricsCollector {
	mc := &MetricsCollector{
		recommendationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Total number of recommendation requests by requested algorithm",
		}, []string{"algorithm"}),

		recommendationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recommendation_latency_seconds",
			Help:    "Recommendation request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}),

		recommendationsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendations_served_total",
			Help: "Recommendations returned by producing algorithm",
		}, []string{"algorithm"}),

		popularityFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recommendation_popularity_fallbacks_total",
			Help: "Requests answered from the popularity ranking",
		}),

		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_cache_lookups_total",
			Help: "Recommendation cache lookups by result",
		}, []string{"result"}),

		interactionsTracked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interactions_tracked_total",
			Help: "Tracked interactions by type",
		}, []string{"interaction_type"}),

		trainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "model_training_runs_total",
			Help: "Training runs by outcome",
		}, []string{"status"}),

		trainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_training_duration_seconds",
			Help:    "Wall-clock duration of completed training runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),

		algorithmFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "model_training_algorithm_failures_total",
			Help: "Per-algorithm training failures",
		}, []string{"algorithm"}),

		modelVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "model_version",
			Help: "Version of the currently published models",
		}),
	}

	collectors := []prometheus.Collector{
		mc.recommendationRequests,
		mc.recommendationLatency,
		mc.recommendationsServed,
		mc.popularityFallbacks,
		mc.cacheLookups,
		mc.interactionsTracked,
		mc.trainingRuns,
		mc.trainingDuration,
		mc.algorithmFailures,
		mc.modelVersion,
	}

	// Register metrics, ignoring collectors that are already registered
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				logger.WithError(err).Warn("Failed to register recommendation metric")
			}
		}
	}

	return mc
}

// RecordRecommendation records one served recommendation request.
func (mc *MetricsCollector) RecordRecommendation(filter models.AlgorithmFilter, recs []models.Recommendation, duration time.Duration) {
	if mc == nil {
		return
	}

	requested := string(filter)
	if requested == "" {
		requested = string(models.AlgorithmHybrid)
	}
	mc.recommendationRequests.WithLabelValues(requested).Inc()
	mc.recommendationLatency.Observe(duration.Seconds())

	for _, rec := range recs {
		mc.recommendationsServed.WithLabelValues(string(rec.Algorithm)).Inc()
	}
}

func (mc *MetricsCollector) RecordPopularityFallback() {
	if mc == nil {
		return
	}
	mc.popularityFallbacks.Inc()
}

func (mc *MetricsCollector) RecordCacheLookup(hit bool) {
	if mc == nil {
		return
	}
	if hit {
		mc.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		mc.cacheLookups.WithLabelValues("miss").Inc()
	}
}

func (mc *MetricsCollector) RecordInteraction(t models.InteractionType) {
	if mc == nil {
		return
	}
	mc.interactionsTracked.WithLabelValues(string(t)).Inc()
}

// RecordTraining records the outcome of a training run.
func (mc *MetricsCollector) RecordTraining(result *models.TrainingResult) {
	if mc == nil || result == nil {
		return
	}

	mc.trainingRuns.WithLabelValues(string(result.Status)).Inc()
	if result.Status == models.TrainingSkipped {
		return
	}

	mc.trainingDuration.Observe(result.DurationSeconds)
	for _, failure := range result.Failures {
		mc.algorithmFailures.WithLabelValues(string(failure.Algorithm)).Inc()
	}
	if result.Status == models.TrainingSuccess {
		mc.modelVersion.Set(float64(result.ModelVersion))
	}
}
