package monitor

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stellar/go/support/log"
)

// prometheusClient keeps its own registry instead of the global default one,
// so more than one client can exist in a process without panicking on
// duplicate registration.
type prometheusClient struct {
	httpHandler     http.Handler
	metricsRegistry *prometheus.Registry
}

var _ MonitorClient = (*prometheusClient)(nil)

// NewPrometheusClient registers every tag listed by MetricTag.ListAll with a
// fresh registry. A tag missing from all of the vec maps is a programming
// error and refuses to start.
func NewPrometheusClient() (*prometheusClient, error) {
	metricsRegistry := prometheus.NewRegistry()

	var metricTag MetricTag
	for _, tag := range metricTag.ListAll() {
		switch {
		case SummaryVecMetrics[tag] != nil:
			metricsRegistry.MustRegister(SummaryVecMetrics[tag])
		case CounterVecMetrics[tag] != nil:
			metricsRegistry.MustRegister(CounterVecMetrics[tag])
		case HistogramVecMetrics[tag] != nil:
			metricsRegistry.MustRegister(HistogramVecMetrics[tag])
		default:
			return nil, fmt.Errorf("metric not registered in prometheus metrics: %s", tag)
		}
	}

	return &prometheusClient{
		httpHandler:     promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}),
		metricsRegistry: metricsRegistry,
	}, nil
}

func (prometheusClient) GetMetricType() MetricType {
	return MetricTypePrometheus
}

func (p *prometheusClient) GetMetricHttpHandler() http.Handler {
	return p.httpHandler
}

func (p *prometheusClient) MonitorHttpRequestDuration(duration time.Duration, labels HttpRequestLabels) {
	SummaryVecMetrics[HttpRequestDurationTag].With(prometheus.Labels{
		"status": labels.Status,
		"route":  labels.Route,
		"method": labels.Method,
	}).Observe(duration.Seconds())
}

func (p *prometheusClient) MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels) {
	summary := SummaryVecMetrics[tag]
	summary.With(prometheus.Labels{
		"query_type": labels.QueryType,
	}).Observe(duration.Seconds())
}

func (p *prometheusClient) MonitorDuration(duration time.Duration, tag MetricTag, labels map[string]string) {
	summary := SummaryVecMetrics[tag]
	summary.With(labels).Observe(duration.Seconds())
}

func (p *prometheusClient) MonitorCounters(tag MetricTag, labels map[string]string) {
	if counterVecMetric, ok := CounterVecMetrics[tag]; ok {
		counterVecMetric.With(labels).Inc()
	} else {
		log.Errorf("metric not registered in Prometheus CounterVecMetrics: %s", tag)
	}
}

func (p *prometheusClient) MonitorHistogram(value float64, tag MetricTag, labels map[string]string) {
	histogram := HistogramVecMetrics[tag]
	histogram.With(labels).Observe(value)
}

// RegisterFunctionMetric registers a collector whose value is computed by the
// given callback at scrape time. Must be called before the first scrape;
// registering the same name twice panics.
func (p *prometheusClient) RegisterFunctionMetric(metricType FuncMetricType, opts FuncMetricOptions) {
	var collector prometheus.Collector
	switch metricType {
	case FuncGaugeType:
		collector = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subservice,
			Name:        opts.Name,
			Help:        opts.Help,
			ConstLabels: opts.Labels,
		}, opts.Function)
	case FuncCounterType:
		collector = prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subservice,
			Name:        opts.Name,
			Help:        opts.Help,
			ConstLabels: opts.Labels,
		}, opts.Function)
	default:
		log.Errorf("unknown function metric type %q for metric %s", metricType, opts.Name)
		return
	}

	p.metricsRegistry.MustRegister(collector)
}
