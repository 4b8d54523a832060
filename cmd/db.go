package cmd

import (
	"context"
	"fmt"
	"strconv"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/db"
)

// DatabaseCommand groups the schema management subcommands under `db`.
type DatabaseCommand struct{}

// chainedPersistentPreRun calls the parent's PersistentPreRun. Cobra replaces
// the hook on nested commands instead of stacking it, and the root hook is
// where the global flags are applied.
func chainedPersistentPreRun(cmd *cobra.Command, args []string) {
	if cmd.Parent().PersistentPreRun != nil {
		cmd.Parent().PersistentPreRun(cmd.Parent(), args)
	}
}

func helpRun(cmd *cobra.Command, _ []string) {
	if err := cmd.Help(); err != nil {
		log.Fatalf("Error calling help command: %s", err.Error())
	}
}

func (c *DatabaseCommand) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:              "db",
		Short:            "Database related commands",
		PersistentPreRun: chainedPersistentPreRun,
		Run:              helpRun,
	}

	migrateCmd := &cobra.Command{
		Use:              "migrate",
		Short:            fmt.Sprintf("Schema migration helpers. The migrations are tracked in the table `%s`.", db.MigrationsTableName),
		PersistentPreRun: chainedPersistentPreRun,
		Run:              helpRun,
	}
	migrateCmd.AddCommand(c.migrateUpCmd(), c.migrateDownCmd())
	cmd.AddCommand(migrateCmd)

	return cmd
}

func (c *DatabaseCommand) migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:              "up",
		Short:            "Migrates database up [count] migrations",
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRun: chainedPersistentPreRun,
		Run: func(cmd *cobra.Command, args []string) {
			// Without a count every pending migration is applied.
			count := 0
			if len(args) > 0 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil {
					log.Fatalf("Invalid [count] argument: %s", args[0])
				}
				count = parsed
			}

			if err := c.executeMigrate(cmd.Context(), migrate.Up, count); err != nil {
				log.Fatalf("Error executing migrate up: %v", err)
			}
		},
	}
}

func (c *DatabaseCommand) migrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:              "down [count]",
		Short:            "Migrates database down [count] migrations",
		Args:             cobra.ExactArgs(1),
		PersistentPreRun: chainedPersistentPreRun,
		Run: func(cmd *cobra.Command, args []string) {
			count, err := strconv.Atoi(args[0])
			if err != nil {
				log.Fatalf("Invalid [count] argument: %s", args[0])
			}

			if err := c.executeMigrate(cmd.Context(), migrate.Down, count); err != nil {
				log.Fatalf("Error executing migrate down: %v", err)
			}
		},
	}
}

func (c *DatabaseCommand) executeMigrate(ctx context.Context, dir migrate.MigrationDirection, count int) error {
	if err := db.EnsureDirFor(globalOptions.DatabasePath); err != nil {
		return fmt.Errorf("preparing database directory: %w", err)
	}

	numMigrationsRun, err := db.Migrate(db.SQLiteDSN(globalOptions.DatabasePath), dir, count)
	if err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	if numMigrationsRun == 0 {
		log.Ctx(ctx).Info("No migrations applied.")
	} else {
		log.Ctx(ctx).Infof("Successfully applied %d migrations %s.", numMigrationsRun, directionLabel(dir))
	}
	return nil
}

func directionLabel(dir migrate.MigrationDirection) string {
	if dir == migrate.Up {
		return "up"
	}
	return "down"
}
