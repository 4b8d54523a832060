// Package monitor wires Prometheus instrumentation into the coordinator:
// HTTP middleware, the instrumented SQL wrappers, and the grid gauges all
// report through a MonitorService configured here.
package monitor

import (
	"fmt"
	"strings"
)

// MetricType selects the metrics backend. Prometheus is the only backend
// today; the indirection keeps callers off the concrete client.
type MetricType string

const MetricTypePrometheus MetricType = "PROMETHEUS"

// ParseMetricType normalizes a user-supplied metric type string. Matching is
// case-insensitive.
func ParseMetricType(metricTypeStr string) (MetricType, error) {
	normalized := strings.ToUpper(metricTypeStr)
	if mType := MetricType(normalized); mType == MetricTypePrometheus {
		return mType, nil
	}
	return "", fmt.Errorf("invalid metric type %q", normalized)
}

// MetricOptions configures the metrics backend of a MonitorService.
type MetricOptions struct {
	MetricType  MetricType
	Environment string
}

// GetClient builds the MonitorClient for the backend named in opts.
func GetClient(opts MetricOptions) (MonitorClient, error) {
	if opts.MetricType != MetricTypePrometheus {
		return nil, fmt.Errorf("unknown metric type: %q", opts.MetricType)
	}
	return NewPrometheusClient()
}
