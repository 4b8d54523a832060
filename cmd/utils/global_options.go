package utils

import (
	"github.com/sirupsen/logrus"

	"github.com/gridx-network/gridx-coordinator/internal/crashtracker"
)

// GlobalOptionsType carries the flags shared by every subcommand: logging,
// crash reporting, environment, build identity, and the SQLite path.
type GlobalOptionsType struct {
	LogLevel     logrus.Level
	SentryDSN    string
	Environment  string
	Version      string
	GitCommit    string
	DatabasePath string
}

// PopulateCrashTrackerOptions copies the crash-tracker fields out of the
// globals. The DSN only applies when Sentry is the selected tracker.
func (g GlobalOptionsType) PopulateCrashTrackerOptions(crashTrackerOptions *crashtracker.CrashTrackerOptions) {
	if crashTrackerOptions.CrashTrackerType == crashtracker.CrashTrackerTypeSentry {
		crashTrackerOptions.SentryDSN = g.SentryDSN
	}
	crashTrackerOptions.Environment = g.Environment
	crashTrackerOptions.GitCommit = g.GitCommit
}
