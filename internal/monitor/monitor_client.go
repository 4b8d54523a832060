package monitor

import (
	"net/http"
	"time"
)

type MonitorClient interface {
	GetMetricHttpHandler() http.Handler
	GetMetricType() MetricType
	MonitorHttpRequestDuration(duration time.Duration, labels HttpRequestLabels)
	MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels)
	MonitorCounters(tag MetricTag, labels map[string]string)
	MonitorDuration(duration time.Duration, tag MetricTag, labels map[string]string)
	MonitorHistogram(value float64, tag MetricTag, labels map[string]string)
	RegisterFunctionMetric(metricType FuncMetricType, opts FuncMetricOptions)
}

// FuncMetricType selects the collector kind for a function-backed metric.
type FuncMetricType string

const (
	FuncGaugeType   FuncMetricType = "gauge"
	FuncCounterType FuncMetricType = "counter"
)

// FuncMetricOptions describes a metric whose value is pulled from a callback
// at scrape time. Counters must be monotonically non-decreasing.
type FuncMetricOptions struct {
	Namespace  string
	Subservice string
	Name       string
	Help       string
	Labels     map[string]string
	Function   func() float64
}

const DefaultNamespace = "gridx"

type Subservice string

const (
	DBSubservice       Subservice = "db"
	DispatchSubservice Subservice = "dispatch"
	WSSubservice       Subservice = "ws"
)
