package monitor

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockMonitorService mocks MonitorServiceInterface wherever instrumentation
// crosses a package boundary under test.
type MockMonitorService struct {
	mock.Mock
}

var _ MonitorServiceInterface = (*MockMonitorService)(nil)

// NewMockMonitorService returns a mock that verifies its expectations when
// the test finishes.
func NewMockMonitorService(t *testing.T) *MockMonitorService {
	t.Helper()

	m := &MockMonitorService{}
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockMonitorService) Start(opts MetricOptions) error {
	return m.Called(opts).Error(0)
}

func (m *MockMonitorService) GetMetricType() (MetricType, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return "", args.Error(1)
	}
	return args.Get(0).(MetricType), args.Error(1)
}

func (m *MockMonitorService) GetMetricHttpHandler() (http.Handler, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(http.Handler), args.Error(1)
}

func (m *MockMonitorService) MonitorHttpRequestDuration(duration time.Duration, labels HttpRequestLabels) error {
	return m.Called(duration, labels).Error(0)
}

func (m *MockMonitorService) MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels) error {
	return m.Called(duration, tag, labels).Error(0)
}

func (m *MockMonitorService) MonitorCounters(tag MetricTag, labels map[string]string) error {
	return m.Called(tag, labels).Error(0)
}

func (m *MockMonitorService) MonitorDuration(duration time.Duration, tag MetricTag, labels map[string]string) error {
	return m.Called(duration, tag, labels).Error(0)
}

func (m *MockMonitorService) MonitorHistogram(value float64, tag MetricTag, labels map[string]string) error {
	return m.Called(value, tag, labels).Error(0)
}

func (m *MockMonitorService) RegisterFunctionMetric(metricType FuncMetricType, opts FuncMetricOptions) error {
	return m.Called(metricType, opts).Error(0)
}
