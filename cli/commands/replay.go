package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemamigrate/cli/internal/ui"
	"github.com/satishbabariya/schemamigrate/migrate/history"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild the schema described by the migration history",
	Long: `Replay every stored migration set and print the schema the database is
expected to have. Problems found while replaying are printed as warnings.`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

var replayJSON bool

func init() {
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print the replayed schema as JSON")

	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, _ []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	baseline, err := engine.Baseline(cmd.Context())
	if err != nil {
		return err
	}

	if replayJSON {
		out, err := history.SerializeSchema(baseline.Schema())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}

	tables := baseline.Schema()
	ui.PrintSection(fmt.Sprintf("Schema at version %d (%d tables)", baseline.Version(), len(tables)))
	for _, name := range tables.Names() {
		printTable(tables[name])
	}
	for _, w := range baseline.Warnings() {
		ui.PrintWarning("%s", w)
	}
	return nil
}

func printTable(t schema.TableInfo) {
	fmt.Println()
	ui.PrintInfo("%s (%s) primary key %s", t.Name, t.QualifiedType, strings.Join(t.SortedPrimaryKey(), ", "))

	rows := make([][]string, 0, len(t.Columns))
	for _, col := range t.SortedColumns() {
		var flags []string
		if col.Unique {
			flags = append(flags, "unique")
		}
		if col.Index {
			flags = append(flags, "index")
		}
		if col.Searchable {
			flags = append(flags, "searchable")
		}
		if col.Orderable {
			flags = append(flags, "orderable")
		}
		ref := ""
		if col.ForeignKey != nil {
			ref = col.ForeignKey.TableName + "." + col.ForeignKey.ColumnName
		}
		rows = append(rows, []string{col.Name, string(col.Type), col.DefaultLiteral(), strings.Join(flags, ","), ref})
	}
	ui.PrintTable([]string{"Column", "Type", "Default", "Flags", "References"}, rows)

	for _, idx := range t.Indices {
		kind := "index"
		if idx.Unique {
			kind = "unique index"
		}
		ui.PrintList([]string{fmt.Sprintf("%s (%s)", kind, strings.Join(idx.Columns, ", "))})
	}
	for _, fk := range t.ForeignKeys {
		ui.PrintList([]string{fmt.Sprintf("foreign key (%s) -> %s (%s)",
			strings.Join(fk.LocalColumns(), ", "), fk.ForeignTableName, strings.Join(fk.ForeignColumns(), ", "))})
	}
}
