package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemamigrate/cli/internal/ui"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the declaration file",
	Long: `Validate the declaration file for syntax and semantic errors.

This command will:
- Parse the declaration (.schema, .json or .yaml)
- Check that keys, indices and references name existing columns and tables
- Display a summary of the declared tables`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	tables, err := loadTarget()
	if err != nil {
		return err
	}

	absPath, _ := filepath.Abs(cfg.SchemaPath)
	ui.PrintSuccess("Declaration is valid: %s", absPath)

	fmt.Println()
	ui.PrintSection("Tables")
	for _, name := range tables.Names() {
		t := tables[name]
		ui.PrintInfo("%s (%d columns, %d indices, %d foreign keys)",
			name, len(t.Columns), len(t.Indices), len(t.AllForeignKeys()))
	}
	return nil
}
