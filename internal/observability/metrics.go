package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quota_dispatch"

// Metrics stores Prometheus collectors used by the API and dispatch flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	sendsTotal          *prometheus.CounterVec
	sendFailuresTotal   *prometheus.CounterVec
	sendDuration        *prometheus.HistogramVec
	bulkInflight        *prometheus.GaugeVec
	noProviderTotal     *prometheus.CounterVec
	providerSentToday   *prometheus.GaugeVec
	ledgerWriteFailures *prometheus.CounterVec
	bulkJobsTotal       *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		sendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sends_total",
				Help:      "Total number of messages accepted by a provider.",
			},
			[]string{"channel", "provider"},
		),
		sendFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "send_failures_total",
				Help:      "Total number of failed send attempts by reason.",
			},
			[]string{"channel", "provider", "reason"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "send_duration_seconds",
				Help:      "Provider call duration in seconds grouped by provider.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"provider"},
		),
		bulkInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "bulk_inflight",
				Help:      "Current number of in-flight bulk sends grouped by channel.",
			},
			[]string{"channel"},
		),
		noProviderTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "no_provider_available_total",
				Help:      "Total number of sends rejected because every provider was at quota.",
			},
			[]string{"channel"},
		),
		providerSentToday: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_sent_today",
				Help:      "Messages counted against each provider's daily quota.",
			},
			[]string{"provider"},
		),
		ledgerWriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_write_failures_total",
				Help:      "Total number of usage ledger writes that failed.",
			},
			[]string{"provider"},
		),
		bulkJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_jobs_total",
				Help:      "Total number of finished bulk jobs by final status.",
			},
			[]string{"channel", "status"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.sendsTotal,
		m.sendFailuresTotal,
		m.sendDuration,
		m.bulkInflight,
		m.noProviderTotal,
		m.providerSentToday,
		m.ledgerWriteFailures,
		m.bulkJobsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncSent(channel string, provider string) {
	if m == nil {
		return
	}
	m.sendsTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(provider)).Inc()
}

func (m *Metrics) IncSendFailed(channel string, provider string, reason string) {
	if m == nil {
		return
	}
	m.sendFailuresTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(provider), normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveSendDuration(provider string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.sendDuration.WithLabelValues(normalizeLabel(provider)).Observe(seconds)
}

func (m *Metrics) IncBulkInFlight(channel string) {
	if m == nil {
		return
	}
	m.bulkInflight.WithLabelValues(normalizeLabel(channel)).Inc()
}

func (m *Metrics) DecBulkInFlight(channel string) {
	if m == nil {
		return
	}
	m.bulkInflight.WithLabelValues(normalizeLabel(channel)).Dec()
}

func (m *Metrics) IncNoProvider(channel string) {
	if m == nil {
		return
	}
	m.noProviderTotal.WithLabelValues(normalizeLabel(channel)).Inc()
}

func (m *Metrics) SetProviderSentToday(provider string, sent int64) {
	if m == nil {
		return
	}
	m.providerSentToday.WithLabelValues(normalizeLabel(provider)).Set(float64(sent))
}

func (m *Metrics) IncLedgerWriteFailure(provider string) {
	if m == nil {
		return
	}
	m.ledgerWriteFailures.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *Metrics) IncBulkJob(channel string, status string) {
	if m == nil {
		return
	}
	m.bulkJobsTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(status)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
