package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stellar/go/support/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newScopedClient builds a client whose registry holds only the given tags,
// so scrapes show just the metrics under test. The underlying vec metrics are
// package globals and get reset when the test finishes.
func newScopedClient(t *testing.T, tags ...MetricTag) *prometheusClient {
	t.Helper()

	registry := prometheus.NewRegistry()
	for _, tag := range tags {
		switch {
		case SummaryVecMetrics[tag] != nil:
			registry.MustRegister(SummaryVecMetrics[tag])
		case CounterVecMetrics[tag] != nil:
			registry.MustRegister(CounterVecMetrics[tag])
		case HistogramVecMetrics[tag] != nil:
			registry.MustRegister(HistogramVecMetrics[tag])
		default:
			t.Fatalf("no vec metric mapped for tag %s", tag)
		}
	}

	t.Cleanup(func() {
		for _, tag := range tags {
			switch {
			case SummaryVecMetrics[tag] != nil:
				SummaryVecMetrics[tag].Reset()
			case CounterVecMetrics[tag] != nil:
				CounterVecMetrics[tag].Reset()
			case HistogramVecMetrics[tag] != nil:
				HistogramVecMetrics[tag].Reset()
			}
		}
	})

	return &prometheusClient{
		httpHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		metricsRegistry: registry,
	}
}

// scrape serves one GET /metrics against the client and returns the
// exposition body.
func scrape(t *testing.T, client *prometheusClient) string {
	t.Helper()

	rr := httptest.NewRecorder()
	client.GetMetricHttpHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func Test_PrometheusClient_GetMetricType(t *testing.T) {
	assert.Equal(t, MetricTypePrometheus, (&prometheusClient{}).GetMetricType())
}

func Test_PrometheusClient_GetMetricHttpHandler(t *testing.T) {
	stub := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(`{"status": "OK"}`))
		require.NoError(t, err)
	})
	client := &prometheusClient{httpHandler: stub}

	rr := httptest.NewRecorder()
	client.GetMetricHttpHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status": "OK"}`, rr.Body.String())
}

func Test_PrometheusClient_MonitorHttpRequestDuration(t *testing.T) {
	client := newScopedClient(t, HttpRequestDurationTag)

	client.MonitorHttpRequestDuration(time.Second, HttpRequestLabels{
		Status: "200",
		Route:  "/mock",
		Method: "GET",
	})

	body := scrape(t, client)
	assert.Contains(t, body, `gridx_http_requests_duration_seconds_sum{method="GET",route="/mock",status="200"} 1`)
	assert.Contains(t, body, `gridx_http_requests_duration_seconds_count{method="GET",route="/mock",status="200"} 1`)
}

func Test_PrometheusClient_MonitorDBQueryDuration(t *testing.T) {
	client := newScopedClient(t, SuccessfulQueryDurationTag, FailureQueryDurationTag)
	queryLabels := DBQueryLabels{QueryType: "SELECT"}

	t.Run("successful query duration", func(t *testing.T) {
		client.MonitorDBQueryDuration(time.Second, SuccessfulQueryDurationTag, queryLabels)

		body := scrape(t, client)
		assert.Contains(t, body, `gridx_db_successful_queries_duration_sum{query_type="SELECT"} 1`)
		assert.Contains(t, body, `gridx_db_successful_queries_duration_count{query_type="SELECT"} 1`)
	})

	t.Run("failed query duration", func(t *testing.T) {
		client.MonitorDBQueryDuration(time.Second, FailureQueryDurationTag, queryLabels)

		body := scrape(t, client)
		assert.Contains(t, body, `gridx_db_failure_queries_duration_sum{query_type="SELECT"} 1`)
		assert.Contains(t, body, `gridx_db_failure_queries_duration_count{query_type="SELECT"} 1`)
	})
}

func Test_PrometheusClient_MonitorCounters(t *testing.T) {
	client := newScopedClient(t, DispatchAttemptsCounterTag, JobsRequeuedCounterTag)

	t.Run("dispatch attempts counter", func(t *testing.T) {
		labels := DispatchLabels{Outcome: DispatchOutcomeAssigned}
		client.MonitorCounters(DispatchAttemptsCounterTag, labels.ToMap())

		body := scrape(t, client)
		assert.Contains(t, body, `gridx_dispatch_dispatch_attempts_counter{outcome="assigned"} 1`)
	})

	t.Run("jobs requeued counter", func(t *testing.T) {
		labels := RequeueLabels{Reason: RequeueReasonDisconnect}
		client.MonitorCounters(JobsRequeuedCounterTag, labels.ToMap())

		body := scrape(t, client)
		assert.Contains(t, body, `gridx_business_jobs_requeued_counter{reason="disconnect"} 1`)
	})

	t.Run("a tag with no registered counter only logs", func(t *testing.T) {
		buf := new(strings.Builder)
		previousOutput := log.DefaultLogger.Out
		log.DefaultLogger.SetOutput(buf)
		t.Cleanup(func() { log.DefaultLogger.SetOutput(previousOutput) })

		client.MonitorCounters(MetricTag("counter_vec_mock_tag"), map[string]string{"mock": "mock_value"})

		assert.Contains(t, buf.String(), "metric not registered in Prometheus CounterVecMetrics: counter_vec_mock_tag")
	})
}

func Test_PrometheusClient_MonitorHistogram(t *testing.T) {
	client := newScopedClient(t, JobDurationSecondsTag)

	client.MonitorHistogram(2.5, JobDurationSecondsTag, map[string]string{"language": "python"})

	body := scrape(t, client)
	assert.Contains(t, body, `gridx_business_job_duration_seconds_sum{language="python"} 2.5`)
	assert.Contains(t, body, `gridx_business_job_duration_seconds_count{language="python"} 1`)
}

func Test_PrometheusClient_RegisterFunctionMetric(t *testing.T) {
	client, err := NewPrometheusClient()
	require.NoError(t, err)

	queueSize := 3.0
	client.RegisterFunctionMetric(FuncGaugeType, FuncMetricOptions{
		Namespace:  DefaultNamespace,
		Subservice: string(DispatchSubservice),
		Name:       string(QueueSizeTag),
		Help:       "Jobs waiting in the queue",
		Function:   func() float64 { return queueSize },
	})

	waitCount := 7.0
	client.RegisterFunctionMetric(FuncCounterType, FuncMetricOptions{
		Namespace:  DefaultNamespace,
		Subservice: string(DBSubservice),
		Name:       string(DBWaitCountTotalTag),
		Help:       "Total connections waited for",
		Labels:     map[string]string{"pool": "gridx.db"},
		Function:   func() float64 { return waitCount },
	})

	body := scrape(t, client)
	assert.Contains(t, body, `gridx_dispatch_queue_size 3`)
	assert.Contains(t, body, `gridx_db_db_wait_count_total{pool="gridx.db"} 7`)
}
