package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemamigrate/cli/internal/ui"
	"github.com/satishbabariya/schemamigrate/migrate"
	"github.com/satishbabariya/schemamigrate/migrate/migration"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply pending migration sets to the database",
	Long: `Apply every stored migration set above the database's current version,
in version order. Each set runs in its own transaction and is recorded in
the _schema_migrations table.

Sets that drop tables ask for confirmation unless --yes is given.`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

var (
	applyYes  bool
	applySave bool
)

func init() {
	applyCmd.Flags().BoolVarP(&applyYes, "yes", "y", false, "Apply destructive sets without asking")
	applyCmd.Flags().BoolVar(&applySave, "save", false, "Save the current declaration diff as a new set first")

	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	engine, err := newEngine()
	if err != nil {
		return err
	}

	if applySave {
		target, err := loadTarget()
		if err != nil {
			return err
		}
		set, err := engine.Plan(ctx, target)
		if err != nil {
			return err
		}
		if !set.IsEmpty() {
			name, err := engine.Save(ctx, set)
			if err != nil {
				return err
			}
			ui.PrintInfo("Saved version %d to %s", set.DBVersion(), name)
		}
	}

	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	spinner, _ := ui.PrintSpinner("Applying migrations...")
	var confirm migrate.ConfirmFunc
	if !applyYes {
		confirm = func(set *migration.Set, statements []string) bool {
			_ = spinner.Stop()
			return confirmDestructive(set, statements)
		}
	}
	results, err := engine.Apply(ctx, db, confirm)
	_ = spinner.Stop()
	for _, r := range results {
		ui.PrintSuccess("Applied version %d (%d statements, %s)", r.DBVersion, r.Statements, r.Duration)
	}
	if err != nil {
		return err
	}
	if len(results) == 0 {
		ui.PrintInfo("Database is up to date")
	}
	return nil
}

func confirmDestructive(set *migration.Set, statements []string) bool {
	ui.PrintWarning("Version %d drops tables:", set.DBVersion())
	ui.PrintMigrations(set)
	ui.PrintCodeBlock(strings.Join(statements, ";\n")+";", "sql")
	ok, err := ui.Confirm(fmt.Sprintf("Apply version %d and its %d statements?", set.DBVersion(), len(statements)))
	if err != nil {
		ui.PrintError("%v", err)
		return false
	}
	return ok
}
