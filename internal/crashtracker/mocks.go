package crashtracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockCrashTrackerClient mocks CrashTrackerClient for serve and scheduler
// tests.
type MockCrashTrackerClient struct {
	mock.Mock
}

var _ CrashTrackerClient = (*MockCrashTrackerClient)(nil)

// NewMockCrashTrackerClient returns a mock that verifies its expectations
// when the test finishes.
func NewMockCrashTrackerClient(t *testing.T) *MockCrashTrackerClient {
	t.Helper()

	m := &MockCrashTrackerClient{}
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockCrashTrackerClient) LogAndReportErrors(ctx context.Context, err error, msg string) {
	m.Called(ctx, err, msg)
}

func (m *MockCrashTrackerClient) LogAndReportMessages(ctx context.Context, msg string) {
	m.Called(ctx, msg)
}

func (m *MockCrashTrackerClient) FlushEvents(waitTime time.Duration) bool {
	return m.Called(waitTime).Get(0).(bool)
}

func (m *MockCrashTrackerClient) Recover() {
	m.Called()
}

func (m *MockCrashTrackerClient) Clone() CrashTrackerClient {
	return m.Called().Get(0).(*MockCrashTrackerClient)
}
