package observability

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/wa-dispatch/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "wa_dispatch"

// Metrics holds the collectors of one dispatch process. All methods are
// no-ops on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	deliveries       *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	fallbacks        *prometheus.CounterVec
	sessionState     *prometheus.GaugeVec
	pacingDelay      prometheus.Histogram
	runs             *prometheus.CounterVec

	opsRequests        *prometheus.CounterVec
	opsRequestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_total",
			Help:      "Delivery outcomes by channel and status.",
		}, []string{"channel", "status"}),
		deliveryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent on one recipient, confirmation polling included.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"channel"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fallback_total",
			Help:      "Sends that needed the fallback input path.",
		}, []string{"channel"}),
		sessionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "session_state",
			Help:      "1 for the current session state, 0 for the others.",
		}, []string{"state"}),
		pacingDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "pacing_delay_seconds",
			Help:      "Delay enforced between consecutive sends.",
			Buckets:   prometheus.LinearBuckets(0, 5, 12),
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Dispatch runs by channel and result.",
		}, []string{"channel", "result"}),
		opsRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ops_requests_total",
			Help:      "Requests served by the ops server by route and status code.",
		}, []string{"route", "code"}),
		opsRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "ops_request_duration_seconds",
			Help:      "Ops server request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncDelivery(channel string, status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(label(channel), label(status)).Inc()
}

func (m *Metrics) ObserveDeliveryDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	m.deliveryDuration.WithLabelValues(label(channel)).Observe(max(duration.Seconds(), 0))
}

func (m *Metrics) IncFallback(channel string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(label(channel)).Inc()
}

// SetSessionState marks state as current and every other state as inactive.
func (m *Metrics) SetSessionState(state domain.SessionState) {
	if m == nil {
		return
	}
	for _, s := range domain.SessionStates() {
		value := 0.0
		if s == state {
			value = 1
		}
		m.sessionState.WithLabelValues(label(s.String())).Set(value)
	}
}

func (m *Metrics) ObservePacingDelay(delay time.Duration) {
	if m == nil {
		return
	}
	m.pacingDelay.Observe(delay.Seconds())
}

func (m *Metrics) IncRun(channel string, result string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(label(channel), label(result)).Inc()
}

// HTTPMiddleware records every ops server request except metric scrapes.
func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if m == nil {
			return err
		}

		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		if route == "/metrics" {
			return err
		}

		code := c.Response().StatusCode()
		if err != nil {
			code = fiber.StatusInternalServerError
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
			}
		}

		m.opsRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
		m.opsRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		return err
	}
}

func label(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
