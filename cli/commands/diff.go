package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemamigrate/cli/internal/ui"
	"github.com/satishbabariya/schemamigrate/migrate/store"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare the declaration with the migration history",
	Long: `Replay the stored migration history, diff it against the declaration
file and show the resulting migration set.

With --save the set is written to the migration directory as the next
version. Nothing is written when the schema is already up to date.`,
	Args: cobra.NoArgs,
	RunE: runDiff,
}

var (
	diffSave bool
	diffJSON bool
)

func init() {
	diffCmd.Flags().BoolVar(&diffSave, "save", false, "Write the migration set to the migration directory")
	diffCmd.Flags().BoolVar(&diffJSON, "json", false, "Print the migration set as JSON")

	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	target, err := loadTarget()
	if err != nil {
		return err
	}
	engine, err := newEngine()
	if err != nil {
		return err
	}

	set, err := engine.Plan(ctx, target)
	if err != nil {
		return err
	}

	if diffJSON {
		if err := store.Encode(os.Stdout, set); err != nil {
			return err
		}
	} else {
		statements, err := engine.SQL(set)
		if err != nil {
			return err
		}
		if err := ui.PrintMarkdown(ui.PlanMarkdown(set, statements)); err != nil {
			return fmt.Errorf("failed to render plan: %w", err)
		}
	}

	if !diffSave || set.IsEmpty() {
		return nil
	}
	name, err := engine.Save(ctx, set)
	if err != nil {
		return err
	}
	ui.PrintSuccess("Saved version %d to %s", set.DBVersion(), name)
	return nil
}
