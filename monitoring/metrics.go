package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry. A nil *Metrics discards
// observations.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	predictions     *prometheus.CounterVec
	predictErrors   *prometheus.CounterVec
	reloads         prometheus.Counter
	modelInfo       *prometheus.GaugeVec
	modelAccuracy   prometheus.Gauge
	trainingRuns    *prometheus.CounterVec
	wsClients       prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cytodx",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cytodx",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cytodx",
			Name:      "predictions_total",
			Help:      "Predictions served by label.",
		}, []string{"label"}),
		predictErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cytodx",
			Name:      "prediction_errors_total",
			Help:      "Rejected prediction requests by reason.",
		}, []string{"reason"}),
		reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cytodx",
			Name:      "model_reloads_total",
			Help:      "Successful model reloads.",
		}),
		modelInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cytodx",
			Name:      "model_info",
			Help:      "Currently loaded model; value is always 1.",
		}, []string{"version", "algorithm"}),
		modelAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cytodx",
			Name:      "model_accuracy",
			Help:      "Held-out accuracy of the loaded model.",
		}),
		trainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cytodx",
			Name:      "training_runs_total",
			Help:      "Training runs by outcome.",
		}, []string{"outcome"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cytodx",
			Name:      "ws_clients",
			Help:      "Open prediction stream connections.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.predictions, m.predictErrors,
		m.reloads, m.modelInfo, m.modelAccuracy, m.trainingRuns, m.wsClients,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, statusClass(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePrediction(label string) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(label).Inc()
}

func (m *Metrics) ObservePredictionError(reason string) {
	if m == nil {
		return
	}
	m.predictErrors.WithLabelValues(reason).Inc()
}

// ModelLoaded replaces the model_info series with the new version.
func (m *Metrics) ModelLoaded(version, algorithm string, accuracy float64) {
	if m == nil {
		return
	}
	m.reloads.Inc()
	m.modelInfo.Reset()
	m.modelInfo.WithLabelValues(version, algorithm).Set(1)
	m.modelAccuracy.Set(accuracy)
}

func (m *Metrics) ObserveTrainingRun(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.trainingRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.wsClients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.wsClients.Dec()
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
