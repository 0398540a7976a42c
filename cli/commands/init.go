package commands

import (
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemamigrate/cli/internal/config"
	"github.com/satishbabariya/schemamigrate/cli/internal/ui"
)

const exampleDeclaration = `// Tables carry _id, created, modified and deleted columns automatically.
table user "com.example.User" {
  email string @unique
  name  string @default("anonymous") @searchable
}

table post "com.example.Post" {
  title     string @index @orderable
  author_id int64  @references(user._id, onDelete: "CASCADE")
}
`

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Create a config file and an example declaration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	fs := config.AppFs

	if err := fs.MkdirAll(filepath.Join(dir, cfg.MigrationDir), 0755); err != nil {
		return err
	}
	ui.PrintSuccess("Created migration directory: %s", filepath.Join(dir, cfg.MigrationDir))

	schemaPath := filepath.Join(dir, cfg.SchemaPath)
	if exists, _ := afero.Exists(fs, schemaPath); exists {
		ui.PrintWarning("Declaration already exists: %s", schemaPath)
	} else {
		if err := afero.WriteFile(fs, schemaPath, []byte(exampleDeclaration), 0644); err != nil {
			return err
		}
		ui.PrintSuccess("Created declaration: %s", schemaPath)
	}

	if exists, _ := afero.Exists(fs, filepath.Join(dir, config.FileName+".yaml")); exists {
		ui.PrintWarning("Config already exists in %s", dir)
		return nil
	}
	path, err := config.SaveConfig(cfg, dir)
	if err != nil {
		return err
	}
	ui.PrintSuccess("Created config: %s", path)

	ui.PrintSection("Next steps")
	ui.PrintList([]string{
		"Edit " + schemaPath + " to declare your tables",
		"Run: schemamigrate diff --save",
		"Run: schemamigrate apply --database-url <url>",
	})
	return nil
}
