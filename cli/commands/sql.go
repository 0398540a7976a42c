package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemamigrate/migrate/migration"
)

var sqlCmd = &cobra.Command{
	Use:   "sql [version]",
	Short: "Print the DDL for a migration set",
	Long: `Print the DDL statements for the pending declaration changes, or for
the stored migration set with the given version, in the configured dialect.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSQL,
}

func init() {
	rootCmd.AddCommand(sqlCmd)
}

func runSQL(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, err := newEngine()
	if err != nil {
		return err
	}

	var set *migration.Set
	if len(args) == 1 {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		sets, err := engine.History(ctx)
		if err != nil {
			return err
		}
		for _, s := range sets {
			if s.DBVersion() == version {
				set = s
				break
			}
		}
		if set == nil {
			return fmt.Errorf("no stored migration set with version %d", version)
		}
	} else {
		target, err := loadTarget()
		if err != nil {
			return err
		}
		if set, err = engine.Plan(ctx, target); err != nil {
			return err
		}
	}

	statements, err := engine.SQL(set)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "-- %s version %d\n", engine.Dialect(), set.DBVersion())
	for _, stmt := range statements {
		fmt.Fprintf(out, "%s;\n", stmt)
	}
	return nil
}
