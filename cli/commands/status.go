package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemamigrate/cli/internal/ui"
	"github.com/satishbabariya/schemamigrate/migrate/migration"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored migration sets and which are applied",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	engine, err := newEngine()
	if err != nil {
		return err
	}
	sets, err := engine.History(ctx)
	if err != nil {
		return err
	}
	ui.PrintHeader("schemamigrate status", fmt.Sprintf("%s | %s", engine.Dialect(), cfg.MigrationDir))

	current := -1
	db, err := openDB(ctx)
	switch {
	case errors.Is(err, errNoDatabase):
		ui.PrintWarning("No database configured; showing stored history only")
	case err != nil:
		return err
	default:
		defer db.Close()
		if current, _, err = engine.Status(ctx, db); err != nil {
			return err
		}
	}

	ui.PrintSection("Migration history (" + cfg.MigrationDir + ")")
	if len(sets) == 0 {
		ui.PrintInfo("No migration sets stored")
		return nil
	}

	rows := make([][]string, 0, len(sets))
	for _, set := range sets {
		rows = append(rows, []string{
			strconv.Itoa(set.DBVersion()),
			strconv.Itoa(set.Len()),
			yesNo(set.HasDestructive()),
			appliedState(set, current),
		})
	}
	ui.PrintTable([]string{"Version", "Migrations", "Drops tables", "Applied"}, rows)

	if current >= 0 {
		ui.PrintInfo("Database is at version %d", current)
	}
	return nil
}

func appliedState(set *migration.Set, current int) string {
	switch {
	case current < 0:
		return "unknown"
	case set.DBVersion() <= current:
		return "yes"
	default:
		return "pending"
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
