package monitor

import (
	"fmt"
	"net/http"
	"time"
)

// MonitorServiceInterface is the instrumentation surface the rest of the
// coordinator talks to. Callers never see the underlying client.
//
//go:generate mockery --name=MonitorServiceInterface --case=underscore --structname=MockMonitorService
type MonitorServiceInterface interface {
	Start(opts MetricOptions) error
	GetMetricType() (MetricType, error)
	GetMetricHttpHandler() (http.Handler, error)
	MonitorHttpRequestDuration(duration time.Duration, labels HttpRequestLabels) error
	MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels) error
	MonitorCounters(tag MetricTag, labels map[string]string) error
	MonitorDuration(duration time.Duration, tag MetricTag, labels map[string]string) error
	MonitorHistogram(value float64, tag MetricTag, labels map[string]string) error
	RegisterFunctionMetric(metricType FuncMetricType, opts FuncMetricOptions) error
}

// MonitorService dispatches every metric call to the client built by Start.
// Calls before Start fail instead of dropping data silently.
type MonitorService struct {
	MonitorClient MonitorClient
}

var _ MonitorServiceInterface = (*MonitorService)(nil)

func (m *MonitorService) Start(opts MetricOptions) error {
	if m.MonitorClient != nil {
		return fmt.Errorf("service already initialized")
	}

	monitorClient, err := GetClient(opts)
	if err != nil {
		return fmt.Errorf("error creating monitor client: %w", err)
	}

	m.MonitorClient = monitorClient
	return nil
}

func (m *MonitorService) client() (MonitorClient, error) {
	if m.MonitorClient == nil {
		return nil, fmt.Errorf("client was not initialized")
	}
	return m.MonitorClient, nil
}

func (m *MonitorService) GetMetricType() (MetricType, error) {
	client, err := m.client()
	if err != nil {
		return "", err
	}
	return client.GetMetricType(), nil
}

func (m *MonitorService) GetMetricHttpHandler() (http.Handler, error) {
	client, err := m.client()
	if err != nil {
		return nil, err
	}
	return client.GetMetricHttpHandler(), nil
}

func (m *MonitorService) MonitorHttpRequestDuration(duration time.Duration, labels HttpRequestLabels) error {
	client, err := m.client()
	if err != nil {
		return err
	}
	client.MonitorHttpRequestDuration(duration, labels)
	return nil
}

func (m *MonitorService) MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels) error {
	client, err := m.client()
	if err != nil {
		return err
	}
	client.MonitorDBQueryDuration(duration, tag, labels)
	return nil
}

func (m *MonitorService) MonitorCounters(tag MetricTag, labels map[string]string) error {
	client, err := m.client()
	if err != nil {
		return err
	}
	client.MonitorCounters(tag, labels)
	return nil
}

func (m *MonitorService) MonitorDuration(duration time.Duration, tag MetricTag, labels map[string]string) error {
	client, err := m.client()
	if err != nil {
		return err
	}
	client.MonitorDuration(duration, tag, labels)
	return nil
}

func (m *MonitorService) MonitorHistogram(value float64, tag MetricTag, labels map[string]string) error {
	client, err := m.client()
	if err != nil {
		return err
	}
	client.MonitorHistogram(value, tag, labels)
	return nil
}

func (m *MonitorService) RegisterFunctionMetric(metricType FuncMetricType, opts FuncMetricOptions) error {
	client, err := m.client()
	if err != nil {
		return err
	}
	client.RegisterFunctionMetric(metricType, opts)
	return nil
}
