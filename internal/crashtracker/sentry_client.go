package crashtracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stellar/go/support/log"
)

// sentryHub is the slice of *sentry.Hub the client uses. Tests swap in a
// mock; production always runs against the real hub.
type sentryHub interface {
	CaptureException(exception error) *sentry.EventID
	CaptureMessage(message string) *sentry.EventID
	Clone() *sentry.Hub
	Flush(timeout time.Duration) bool
	Recover(err any) *sentry.EventID
}

var _ sentryHub = (*sentry.Hub)(nil)

type sentryClient struct {
	hub sentryHub
}

func NewSentryClient(sentryDSN string, environment string, gitCommit string) (*sentryClient, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         sentryDSN,
		Release:     gitCommit,
		Environment: environment,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing sentry: %w", err)
	}
	return &sentryClient{hub: sentry.CurrentHub()}, nil
}

// LogAndReportErrors logs err with its stack and captures it as a Sentry
// exception. Canceled contexts are an orderly shutdown, not a crash, so
// those errors are logged locally and never reported.
func (s *sentryClient) LogAndReportErrors(ctx context.Context, err error, msg string) {
	if errors.Is(err, context.Canceled) {
		log.Warn("not reporting canceled context to sentry")
		return
	}

	if msg != "" {
		err = fmt.Errorf("%s: %w", msg, err)
	}
	log.Ctx(ctx).WithStack(err).Errorf("%+v", err)
	s.hub.CaptureException(err)
}

func (s *sentryClient) LogAndReportMessages(ctx context.Context, msg string) {
	log.Ctx(ctx).Info(msg)
	s.hub.CaptureMessage(msg)
}

// FlushEvents blocks until buffered events are sent or waitTime elapses.
// Sentry's transport is asynchronous, so call this before the process exits.
func (s *sentryClient) FlushEvents(waitTime time.Duration) bool {
	return s.hub.Flush(waitTime)
}

// Recover captures the in-flight panic, if any. Meant to be deferred.
func (s *sentryClient) Recover() {
	if err := recover(); err != nil {
		s.hub.Recover(err)
	}
}

// Clone derives a client for a new goroutine.
func (s *sentryClient) Clone() CrashTrackerClient {
	return &sentryClient{hub: s.hub.Clone()}
}

var _ CrashTrackerClient = (*sentryClient)(nil)
