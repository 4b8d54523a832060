package utils

import (
	"go/types"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stellar/go/support/config"
	"github.com/stellar/go/support/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridx-network/gridx-coordinator/internal/crashtracker"
	"github.com/gridx-network/gridx-coordinator/internal/monitor"
)

// runSetter drives a ConfigOption through a cobra command the same way the
// real CLI does: flag registration, env binding, then SetValue.
func runSetter(t *testing.T, co config.ConfigOption, args []string, envValue string) error {
	t.Helper()
	ClearTestEnvironment(t)

	if envValue != "" {
		envName := co.EnvVar
		if envName == "" {
			envName = strings.ReplaceAll(strings.ToUpper(co.Name), "-", "_")
		}
		t.Setenv(envName, envValue)
	}

	testCmd := cobra.Command{
		RunE: func(cmd *cobra.Command, args []string) error {
			co.Require()
			return co.SetValue()
		},
	}
	testCmd.SetOut(new(strings.Builder))
	require.NoError(t, co.Init(&testCmd))

	// A nil slice would make cobra fall back to os.Args.
	if args == nil {
		args = []string{}
	}
	testCmd.SetArgs(args)
	return testCmd.Execute()
}

func Test_SetConfigOptionLogLevel(t *testing.T) {
	opts := struct{ logrusLevel logrus.Level }{}

	co := config.ConfigOption{
		Name:           "log-level",
		OptType:        types.String,
		CustomSetValue: SetConfigOptionLogLevel,
		ConfigKey:      &opts.logrusLevel,
	}

	testCases := []struct {
		name            string
		args            []string
		envValue        string
		wantErrContains string
		wantLevel       logrus.Level
	}{
		{
			name:            "returns an error if the log level is empty",
			wantErrContains: `couldn't parse log level: not a valid logrus Level: ""`,
		},
		{
			name:            "returns an error if the log level is invalid",
			args:            []string{"--log-level", "test"},
			wantErrContains: `couldn't parse log level: not a valid logrus Level: "test"`,
		},
		{
			name:      "🎉 sets TRACE from CLI args",
			args:      []string{"--log-level", "TRACE"},
			wantLevel: logrus.TraceLevel,
		},
		{
			name:      "🎉 sets TRACE from the environment",
			envValue:  "TRACE",
			wantLevel: logrus.TraceLevel,
		},
		{
			name:      "🎉 parses levels case-insensitively",
			args:      []string{"--log-level", "iNfO"},
			wantLevel: logrus.InfoLevel,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts.logrusLevel = 0
			err := runSetter(t, co, tc.args, tc.envValue)
			if tc.wantErrContains != "" {
				require.ErrorContains(t, err, tc.wantErrContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantLevel, opts.logrusLevel)
		})
	}
}

func Test_SetConfigOptionMetricType(t *testing.T) {
	opts := struct{ metricType monitor.MetricType }{}

	co := config.ConfigOption{
		Name:           "metrics-type",
		OptType:        types.String,
		CustomSetValue: SetConfigOptionMetricType,
		ConfigKey:      &opts.metricType,
	}

	testCases := []struct {
		name            string
		args            []string
		envValue        string
		wantErrContains string
		wantType        monitor.MetricType
	}{
		{
			name:            "returns an error if the value is empty",
			wantErrContains: `couldn't parse metric type: invalid metric type ""`,
		},
		{
			name:            "returns an error if the value is not supported",
			args:            []string{"--metrics-type", "test"},
			wantErrContains: `couldn't parse metric type: invalid metric type "TEST"`,
		},
		{
			name:     "🎉 sets PROMETHEUS from CLI args",
			args:     []string{"--metrics-type", "PROMETHEUS"},
			wantType: monitor.MetricTypePrometheus,
		},
		{
			name:     "🎉 sets PROMETHEUS from the environment",
			envValue: "PROMETHEUS",
			wantType: monitor.MetricTypePrometheus,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts.metricType = ""
			err := runSetter(t, co, tc.args, tc.envValue)
			if tc.wantErrContains != "" {
				require.ErrorContains(t, err, tc.wantErrContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, opts.metricType)
		})
	}
}

func Test_SetConfigOptionCrashTrackerType(t *testing.T) {
	opts := struct{ crashTrackerType crashtracker.CrashTrackerType }{}

	co := config.ConfigOption{
		Name:           "crash-tracker-type",
		OptType:        types.String,
		CustomSetValue: SetConfigOptionCrashTrackerType,
		ConfigKey:      &opts.crashTrackerType,
	}

	testCases := []struct {
		name            string
		args            []string
		envValue        string
		wantErrContains string
		wantType        crashtracker.CrashTrackerType
	}{
		{
			name:            "returns an error if the value is empty",
			wantErrContains: `couldn't parse crash tracker type: invalid crash tracker type ""`,
		},
		{
			name:            "returns an error if the value is not supported",
			args:            []string{"--crash-tracker-type", "test"},
			wantErrContains: `couldn't parse crash tracker type: invalid crash tracker type "TEST"`,
		},
		{
			name:     "🎉 sets SENTRY from CLI args, case-insensitively",
			args:     []string{"--crash-tracker-type", "SeNtRy"},
			wantType: crashtracker.CrashTrackerTypeSentry,
		},
		{
			name:     "🎉 sets SENTRY from the environment",
			envValue: "SENTRY",
			wantType: crashtracker.CrashTrackerTypeSentry,
		},
		{
			name:     "🎉 sets DRY_RUN from CLI args",
			args:     []string{"--crash-tracker-type", "DRY_RUN"},
			wantType: crashtracker.CrashTrackerTypeDryRun,
		},
		{
			name:     "🎉 sets DRY_RUN from the environment",
			envValue: "DRY_RUN",
			wantType: crashtracker.CrashTrackerTypeDryRun,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts.crashTrackerType = ""
			err := runSetter(t, co, tc.args, tc.envValue)
			if tc.wantErrContains != "" {
				require.ErrorContains(t, err, tc.wantErrContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, opts.crashTrackerType)
		})
	}
}

func Test_SetConfigOptionFloat64(t *testing.T) {
	opts := struct{ costPerSecond float64 }{}

	co := config.ConfigOption{
		Name:           "cost-per-second",
		EnvVar:         "GRIDX_COST_PER_SECOND",
		OptType:        types.String,
		CustomSetValue: SetConfigOptionFloat64,
		ConfigKey:      &opts.costPerSecond,
		FlagDefault:    "0.1",
	}

	testCases := []struct {
		name            string
		args            []string
		envValue        string
		wantErrContains string
		wantValue       float64
	}{
		{
			name:      "🎉 applies the flag default when nothing is set",
			wantValue: 0.1,
		},
		{
			name:            "returns an error if the value is not a number",
			args:            []string{"--cost-per-second", "lots"},
			wantErrContains: "couldn't parse cost-per-second as a number",
		},
		{
			name:      "🎉 sets a decimal value from CLI args",
			args:      []string{"--cost-per-second", "0.25"},
			wantValue: 0.25,
		},
		{
			name:      "🎉 sets a decimal value from the environment",
			envValue:  "12.5",
			wantValue: 12.5,
		},
		{
			name:      "🎉 trims surrounding whitespace",
			envValue:  " 0.75 ",
			wantValue: 0.75,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts.costPerSecond = 0
			err := runSetter(t, co, tc.args, tc.envValue)
			if tc.wantErrContains != "" {
				require.ErrorContains(t, err, tc.wantErrContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantValue, opts.costPerSecond)
		})
	}
}

func Test_SetCorsAllowedOrigins(t *testing.T) {
	opts := struct{ corsAllowedOrigins []string }{}

	co := config.ConfigOption{
		Name:           "cors-allowed-origins",
		OptType:        types.String,
		CustomSetValue: SetCorsAllowedOrigins,
		ConfigKey:      &opts.corsAllowedOrigins,
	}

	testCases := []struct {
		name            string
		args            []string
		envValue        string
		wantErrContains string
		wantOrigins     []string
	}{
		{
			name:            "returns an error if the flag is empty",
			args:            []string{"--cors-allowed-origins", ""},
			wantErrContains: "cors allowed addresses cannot be empty",
		},
		{
			name:            "returns an error if an entry is not a URL",
			args:            []string{"--cors-allowed-origins", ","},
			wantErrContains: `error parsing cors addresses: parse ""`,
		},
		{
			name:        "🎉 sets one origin from CLI args",
			args:        []string{"--cors-allowed-origins", "https://foo.test/*"},
			wantOrigins: []string{"https://foo.test/*"},
		},
		{
			name:        "🎉 splits and trims a comma-separated list",
			args:        []string{"--cors-allowed-origins", "https://foo.test/*, https://bar.test/*"},
			wantOrigins: []string{"https://foo.test/*", "https://bar.test/*"},
		},
		{
			name:        "🎉 sets origins from the environment",
			envValue:    "https://foo.test/*,https://bar.test/*",
			wantOrigins: []string{"https://foo.test/*", "https://bar.test/*"},
		},
		{
			name:        `logs a warning when the "*" value is used`,
			envValue:    "*",
			wantOrigins: []string{"*"},
		},
	}

	getEntries := log.DefaultLogger.StartTest(log.WarnLevel)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts.corsAllowedOrigins = nil
			err := runSetter(t, co, tc.args, tc.envValue)
			if tc.wantErrContains != "" {
				require.ErrorContains(t, err, tc.wantErrContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantOrigins, opts.corsAllowedOrigins)
		})
	}

	entries := getEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, `The value "*" for the CORS Allowed Origins is too permissive and not recommended.`, entries[0].Message)
}
