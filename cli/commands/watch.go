package commands

import (
	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemamigrate/cli/internal/ui"
	"github.com/satishbabariya/schemamigrate/cli/internal/watch"
	"github.com/satishbabariya/schemamigrate/internal/debug"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the migration plan whenever the declaration changes",
	Long: `Watch the declaration file and print the migration plan against the
stored history every time it is saved. Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	engine, err := newEngine()
	if err != nil {
		return err
	}

	plan := func() error {
		target, err := loadTarget()
		if err != nil {
			// keep watching through syntax errors while the file is edited
			ui.PrintError("%v", err)
			return nil
		}
		set, err := engine.Plan(ctx, target)
		if err != nil {
			return err
		}
		statements, err := engine.SQL(set)
		if err != nil {
			return err
		}
		return ui.PrintMarkdown(ui.PlanMarkdown(set, statements))
	}

	w, err := watch.NewWatcher(cfg.SchemaPath, plan, watch.WithLogger(debug.Logger()))
	if err != nil {
		return err
	}
	ui.PrintInfo("Watching %s", cfg.SchemaPath)
	return w.Run(ctx)
}
