// Package crashtracker reports unhandled errors and panics to an external
// tracker. The DRY_RUN client only logs, which is what development runs
// with; SENTRY ships events to a Sentry project.
package crashtracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stellar/go/support/log"
)

// CrashTrackerClient is carried by long-lived goroutines so panics and
// operational errors end up in one place. Clone before handing the client
// to a new goroutine; hubs carry scoped state that must not be shared.
type CrashTrackerClient interface {
	LogAndReportErrors(ctx context.Context, err error, msg string)
	LogAndReportMessages(ctx context.Context, msg string)
	FlushEvents(waitTime time.Duration) bool
	Recover()
	Clone() CrashTrackerClient
}

type CrashTrackerType string

const (
	CrashTrackerTypeSentry CrashTrackerType = "SENTRY"
	CrashTrackerTypeDryRun CrashTrackerType = "DRY_RUN"
)

func ParseCrashTrackerType(crashTrackerTypeStr string) (CrashTrackerType, error) {
	ctType := CrashTrackerType(strings.ToUpper(crashTrackerTypeStr))
	switch ctType {
	case CrashTrackerTypeSentry, CrashTrackerTypeDryRun:
		return ctType, nil
	default:
		return "", fmt.Errorf("invalid crash tracker type %q", string(ctType))
	}
}

type CrashTrackerOptions struct {
	CrashTrackerType CrashTrackerType
	Environment      string
	GitCommit        string

	// SentryDSN is only read when CrashTrackerType is SENTRY.
	SentryDSN string
}

func GetClient(ctx context.Context, opts CrashTrackerOptions) (CrashTrackerClient, error) {
	switch opts.CrashTrackerType {
	case CrashTrackerTypeSentry:
		log.Ctx(ctx).Infof("Using %q crash tracker", opts.CrashTrackerType)
		return NewSentryClient(opts.SentryDSN, opts.Environment, opts.GitCommit)
	case CrashTrackerTypeDryRun:
		log.Ctx(ctx).Warnf("Using %q crash tracker", opts.CrashTrackerType)
		return NewDryRunClient()
	default:
		return nil, fmt.Errorf("unknown crash tracker type: %q", opts.CrashTrackerType)
	}
}
