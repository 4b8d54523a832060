package cmd

import (
	"go/types"

	"github.com/spf13/cobra"
	"github.com/stellar/go/support/config"
	"github.com/stellar/go/support/log"

	cmdUtils "github.com/gridx-network/gridx-coordinator/cmd/utils"
	"github.com/gridx-network/gridx-coordinator/internal/monitor"
)

// globalOptions carries the flags every subcommand inherits from the root.
var globalOptions cmdUtils.GlobalOptionsType

func rootCmd() *cobra.Command {
	configOpts := config.ConfigOptions{
		{
			Name:           "log-level",
			EnvVar:         "GRIDX_LOG_LEVEL",
			Usage:          `The log level used in this project. Options: "TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL", or "PANIC".`,
			OptType:        types.String,
			FlagDefault:    "INFO",
			ConfigKey:      &globalOptions.LogLevel,
			CustomSetValue: cmdUtils.SetConfigOptionLogLevel,
			Required:       true,
		},
		{
			Name:      "sentry-dsn",
			EnvVar:    "GRIDX_SENTRY_DSN",
			Usage:     "The DSN (client key) of the Sentry project. If not provided, Sentry will not be used.",
			OptType:   types.String,
			ConfigKey: &globalOptions.SentryDSN,
			Required:  false,
		},
		{
			Name:        "environment",
			EnvVar:      "GRIDX_ENVIRONMENT",
			Usage:       `The environment where the application is running. Example: "dev", "staging", "production".`,
			OptType:     types.String,
			FlagDefault: "dev",
			ConfigKey:   &globalOptions.Environment,
			Required:    true,
		},
		{
			Name:        "db-path",
			EnvVar:      "GRIDX_DB_PATH",
			Usage:       "Path to the SQLite database file. The parent directory is created when missing.",
			OptType:     types.String,
			FlagDefault: "./data/gridx.db",
			ConfigKey:   &globalOptions.DatabasePath,
			Required:    true,
		},
	}

	rootCmd := &cobra.Command{
		Use:     "gridx-coordinator",
		Short:   "Grid-X Coordinator",
		Long:    "Grid-X Coordinator is the control plane of the Grid-X compute grid. It accepts jobs over HTTP, dispatches them to volunteer workers over WebSocket and settles the credit economy around every run.",
		Version: globalOptions.Version,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			configOpts.Require()
			if err := configOpts.SetValues(); err != nil {
				log.Fatalf("Error setting values of config options: %s", err.Error())
			}
			log.Info("Version: ", globalOptions.Version)
			log.Info("GitCommit: ", globalOptions.GitCommit)
		},
		Run: helpRun,
	}

	if err := configOpts.Init(rootCmd); err != nil {
		log.Fatalf("Error initializing a config option: %s", err.Error())
	}

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number and git commit of gridx-coordinator",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("gridx-coordinator %s (%s)\n", globalOptions.Version, globalOptions.GitCommit)
		},
	}
}

// SetupCLI wires the subcommands onto the root and stamps the build version.
func SetupCLI(version, gitCommit string) *cobra.Command {
	globalOptions.Version = version
	globalOptions.GitCommit = gitCommit

	rootCmd := rootCmd()
	rootCmd.AddCommand((&ServeCommand{}).Command(&ServerService{}, &monitor.MonitorService{}))
	rootCmd.AddCommand((&DatabaseCommand{}).Command())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}
