package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDispatchCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncSent("SMS", "Twilio")
	metrics.IncSendFailed("sms", "clicksend", "adapter_error")
	metrics.ObserveSendDuration("twilio", 120*time.Millisecond)
	metrics.IncBulkInFlight("sms")
	metrics.DecBulkInFlight("sms")
	metrics.IncNoProvider("sms")
	metrics.SetProviderSentToday("twilio", 7)
	metrics.IncLedgerWriteFailure("twilio")
	metrics.IncBulkJob("sms", "PARTIAL_FAILURE")

	if got := testutil.ToFloat64(metrics.sendsTotal.WithLabelValues("sms", "twilio")); got != 1 {
		t.Fatalf("sends_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.sendFailuresTotal.WithLabelValues("sms", "clicksend", "adapter_error")); got != 1 {
		t.Fatalf("send_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.noProviderTotal.WithLabelValues("sms")); got != 1 {
		t.Fatalf("no_provider_available_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.bulkInflight.WithLabelValues("sms")); got != 0 {
		t.Fatalf("bulk_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.providerSentToday.WithLabelValues("twilio")); got != 7 {
		t.Fatalf("provider_sent_today = %v, want 7", got)
	}
	if got := testutil.ToFloat64(metrics.ledgerWriteFailures.WithLabelValues("twilio")); got != 1 {
		t.Fatalf("ledger_write_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.bulkJobsTotal.WithLabelValues("sms", "partial_failure")); got != 1 {
		t.Fatalf("bulk_jobs_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/v1/usage", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/v1/usage", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/v1/usage", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncSent("sms", "twilio")
	metrics.IncSendFailed("sms", "twilio", "timeout")
	metrics.SetProviderSentToday("twilio", 1)
	metrics.IncLedgerWriteFailure("twilio")
	if metrics.Handler() == nil {
		t.Fatal("Handler() should fall back to the default handler")
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
