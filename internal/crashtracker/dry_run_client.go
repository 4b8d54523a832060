package crashtracker

import (
	"context"
	"fmt"
	"time"

	"github.com/stellar/go/support/log"
)

// dryRunClient logs what the sentry client would have reported. No state,
// no network.
type dryRunClient struct{}

func (c *dryRunClient) LogAndReportErrors(ctx context.Context, err error, msg string) {
	if msg != "" {
		err = fmt.Errorf("%s: %w", msg, err)
	}
	log.Ctx(ctx).Errorf("[DRY_RUN crash report] %+v", err)
}

func (c *dryRunClient) LogAndReportMessages(ctx context.Context, msg string) {
	log.Ctx(ctx).Infof("[DRY_RUN crash report] %s", msg)
}

func (c *dryRunClient) FlushEvents(waitTime time.Duration) bool {
	return false
}

func (c *dryRunClient) Recover() {}

func (c *dryRunClient) Clone() CrashTrackerClient {
	return &dryRunClient{}
}

func NewDryRunClient() (*dryRunClient, error) {
	return &dryRunClient{}, nil
}

var _ CrashTrackerClient = (*dryRunClient)(nil)
