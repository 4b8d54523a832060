package utils

import (
	"fmt"
	"go/types"

	"github.com/stellar/go/support/config"

	"github.com/gridx-network/gridx-coordinator/db"
	"github.com/gridx-network/gridx-coordinator/internal/crashtracker"
	"github.com/gridx-network/gridx-coordinator/internal/credits"
	"github.com/gridx-network/gridx-coordinator/internal/scheduler/jobs"
)

// DBPoolOptions contains tunables for the SQLite connection pool.
type DBPoolOptions struct {
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxIdleTimeSeconds int
	DBConnMaxLifetimeSeconds int
}

// DBPoolConfigOptions returns config options for tuning the DB connection pool.
func DBPoolConfigOptions(opts *DBPoolOptions) []*config.ConfigOption {
	return []*config.ConfigOption{
		{
			Name:        "db-max-open-conns",
			EnvVar:      "GRIDX_DB_MAX_OPEN_CONNS",
			Usage:       "Maximum number of open DB connections in the pool",
			OptType:     types.Int,
			ConfigKey:   &opts.DBMaxOpenConns,
			FlagDefault: db.DefaultDBPoolConfig.MaxOpenConns,
			Required:    false,
		},
		{
			Name:        "db-max-idle-conns",
			EnvVar:      "GRIDX_DB_MAX_IDLE_CONNS",
			Usage:       "Maximum number of idle DB connections retained in the pool",
			OptType:     types.Int,
			ConfigKey:   &opts.DBMaxIdleConns,
			FlagDefault: db.DefaultDBPoolConfig.MaxIdleConns,
			Required:    false,
		},
		{
			Name:        "db-conn-max-idle-time-seconds",
			EnvVar:      "GRIDX_DB_CONN_MAX_IDLE_TIME_SECONDS",
			Usage:       "Maximum idle time in seconds before a connection is closed",
			OptType:     types.Int,
			ConfigKey:   &opts.DBConnMaxIdleTimeSeconds,
			FlagDefault: db.DefaultConnMaxIdleTimeSeconds,
			Required:    false,
		},
		{
			Name:        "db-conn-max-lifetime-seconds",
			EnvVar:      "GRIDX_DB_CONN_MAX_LIFETIME_SECONDS",
			Usage:       "Maximum lifetime in seconds for a single connection",
			OptType:     types.Int,
			ConfigKey:   &opts.DBConnMaxLifetimeSeconds,
			FlagDefault: db.DefaultConnMaxLifetimeSeconds,
			Required:    false,
		},
	}
}

// CreditEngineConfigOptions returns the config options that feed the credit
// economy: the per-second rate, the per-job cost clamp, the owner reward
// share and the grant handed to first-time users. Rates are string flags
// parsed through SetConfigOptionFloat64.
func CreditEngineConfigOptions(opts *credits.Config) []*config.ConfigOption {
	return []*config.ConfigOption{
		{
			Name:           "cost-per-second",
			EnvVar:         "GRIDX_COST_PER_SECOND",
			Usage:          "Credits charged per second of job execution",
			OptType:        types.String,
			ConfigKey:      &opts.CostPerSecond,
			CustomSetValue: SetConfigOptionFloat64,
			FlagDefault:    "0.1",
			Required:       true,
		},
		{
			Name:           "min-cost",
			EnvVar:         "GRIDX_MIN_COST",
			Usage:          "Floor for the cost of a single job, in credits",
			OptType:        types.String,
			ConfigKey:      &opts.MinCost,
			CustomSetValue: SetConfigOptionFloat64,
			FlagDefault:    "0.05",
			Required:       true,
		},
		{
			Name:           "max-cost",
			EnvVar:         "GRIDX_MAX_COST",
			Usage:          "Cap for the cost of a single job, in credits",
			OptType:        types.String,
			ConfigKey:      &opts.MaxCost,
			CustomSetValue: SetConfigOptionFloat64,
			FlagDefault:    "25.0",
			Required:       true,
		},
		{
			Name:           "reward-ratio",
			EnvVar:         "GRIDX_REWARD_RATIO",
			Usage:          "Share of the actual job cost credited to the worker owner. Must be within [0, 1].",
			OptType:        types.String,
			ConfigKey:      &opts.RewardRatio,
			CustomSetValue: SetConfigOptionFloat64,
			FlagDefault:    "0.85",
			Required:       true,
		},
		{
			Name:        "default-job-timeout",
			EnvVar:      "GRIDX_DEFAULT_JOB_TIMEOUT",
			Usage:       "Timeout in seconds applied to jobs submitted without one",
			OptType:     types.Int,
			ConfigKey:   &opts.DefaultJobTimeout,
			FlagDefault: 60,
			Required:    true,
		},
		{
			Name:           "initial-credits",
			EnvVar:         "GRIDX_INITIAL_CREDITS",
			Usage:          "Credits granted to a user account on first contact",
			OptType:        types.String,
			ConfigKey:      &opts.InitialBalance,
			CustomSetValue: SetConfigOptionFloat64,
			FlagDefault:    "100.0",
			Required:       true,
		},
	}
}

// WatchdogConfigOptions returns the config options for the stuck-jobs
// watchdog: how often it sweeps and how stale a worker heartbeat may get
// before its running jobs are rescued.
func WatchdogConfigOptions(opts *jobs.StuckJobsWatchdogJobOptions) []*config.ConfigOption {
	return []*config.ConfigOption{
		{
			Name:        "watchdog-interval",
			EnvVar:      "GRIDX_WATCHDOG_INTERVAL",
			Usage:       fmt.Sprintf("The interval in seconds between stuck-job sweeps. Must be greater than %d seconds.", jobs.DefaultMinimumJobIntervalSeconds),
			OptType:     types.Int,
			ConfigKey:   &opts.JobIntervalSeconds,
			FlagDefault: 15,
			Required:    false,
		},
		{
			Name:        "heartbeat-timeout",
			EnvVar:      "GRIDX_HEARTBEAT_TIMEOUT",
			Usage:       "Seconds without a worker heartbeat before its running jobs are requeued",
			OptType:     types.Int,
			ConfigKey:   &opts.HeartbeatTimeoutSeconds,
			FlagDefault: 30,
			Required:    false,
		},
	}
}

func CrashTrackerTypeConfigOption(targetPointer interface{}) *config.ConfigOption {
	return &config.ConfigOption{
		Name:           "crash-tracker-type",
		EnvVar:         "GRIDX_CRASH_TRACKER_TYPE",
		Usage:          `Crash tracker type. Options: "SENTRY", "DRY_RUN"`,
		OptType:        types.String,
		CustomSetValue: SetConfigOptionCrashTrackerType,
		ConfigKey:      targetPointer,
		FlagDefault:    string(crashtracker.CrashTrackerTypeDryRun),
		Required:       true,
	}
}
