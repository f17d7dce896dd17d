package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"modelkit/ml"
)

// Metrics counts model constructions and prediction outcomes.
type Metrics struct {
	predictions   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	constructions *prometheus.CounterVec
	resident      prometheus.Gauge
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered, which is what tests usually want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelkit",
			Name:      "predictions_total",
			Help:      "Predictions by model and outcome (returned, rejected, failed).",
		}, []string{"model", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modelkit",
			Name:      "prediction_duration_seconds",
			Help:      "Time spent in validation and prediction.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"model"}),
		constructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelkit",
			Name:      "constructions_total",
			Help:      "Model constructions by model and result.",
		}, []string{"model", "result"}),
		resident: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modelkit",
			Name:      "resident_models",
			Help:      "Constructed model instances held in the pool.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.predictions, m.latency, m.constructions, m.resident)
	}
	return m
}

func (m *Metrics) ObservePrediction(model string, outcome ml.Outcome, elapsed time.Duration) {
	m.predictions.WithLabelValues(model, string(outcome)).Inc()
	m.latency.WithLabelValues(model).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveConstruction(model string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.constructions.WithLabelValues(model, result).Inc()
}

func (m *Metrics) SetResident(n int) {
	m.resident.Set(float64(n))
}
