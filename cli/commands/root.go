package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satishbabariya/schemamigrate/cli/internal/config"
	"github.com/satishbabariya/schemamigrate/cli/internal/ui"
	"github.com/satishbabariya/schemamigrate/internal/debug"
)

var (
	v   = viper.New()
	cfg *config.Config

	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "schemamigrate",
	Short: "Versioned schema migrations from declared tables",
	Long: `schemamigrate keeps a database schema in step with a declaration file.

It replays the stored migration history into a baseline schema, diffs it
against the declared tables, writes the difference as a new versioned
migration set and applies pending sets to SQLite, PostgreSQL or MySQL.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default .schemamigrate.yaml)")
	flags.StringP("schema", "s", "", "Declaration file (.schema, .json or .yaml)")
	flags.StringP("dir", "d", "", "Migration directory")
	flags.String("dialect", "", "Database dialect: sqlite, postgres or mysql")
	flags.String("database-url", "", "Database connection string")
	flags.Bool("debug", false, "Enable debug logging")

	_ = v.BindPFlag("schema_path", flags.Lookup("schema"))
	_ = v.BindPFlag("migration_dir", flags.Lookup("dir"))
	_ = v.BindPFlag("dialect", flags.Lookup("dialect"))
	_ = v.BindPFlag("database_url", flags.Lookup("database-url"))
	_ = v.BindPFlag("debug", flags.Lookup("debug"))
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	v.SetFs(config.AppFs)
	if err := config.SetDefaults(v); err != nil {
		return err
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	loaded, err := config.LoadConfig(v)
	if err != nil {
		return err
	}
	cfg = loaded
	debug.Init(cfg.Debug)
	debug.Debug("configuration loaded",
		"config", v.ConfigFileUsed(),
		"schema", cfg.SchemaPath,
		"dir", cfg.MigrationDir,
		"dialect", cfg.Dialect)
	return nil
}

// Execute is the main entry point for the CLI
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError("%v", err)
		return err
	}
	return nil
}
