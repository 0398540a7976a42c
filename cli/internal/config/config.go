package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/satishbabariya/schemamigrate/migrate/sqlgen"
)

var AppFs = afero.NewOsFs()

// FileName is the config file name looked up in ., $HOME and $HOME/.config/schemamigrate.
const FileName = ".schemamigrate"

// Config holds the application configuration
type Config struct {
	SchemaPath   string
	MigrationDir string
	Dialect      sqlgen.Dialect
	DatabaseURL  string
	Debug        bool
}

// SetDefaults registers config lookup paths, environment binding and defaults on v.
func SetDefaults(v *viper.Viper) error {
	home, err := homedir.Dir()
	if err != nil {
		return err
	}

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "schemamigrate"))

	v.SetEnvPrefix("SCHEMAMIGRATE")
	v.AutomaticEnv()

	v.SetDefault("schema_path", "schema.schema")
	v.SetDefault("migration_dir", "migrations")
	v.SetDefault("dialect", string(sqlgen.SQLite))
	v.SetDefault("debug", false)
	return nil
}

// LoadConfig reads .env files, then the config file if one exists, and
// resolves the configuration from v.
func LoadConfig(v *viper.Viper) (*Config, error) {
	loadEnvFiles()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	dialect, err := sqlgen.ParseDialect(v.GetString("dialect"))
	if err != nil {
		return nil, err
	}

	url := v.GetString("database_url")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}

	return &Config{
		SchemaPath:   v.GetString("schema_path"),
		MigrationDir: v.GetString("migration_dir"),
		Dialect:      dialect,
		DatabaseURL:  url,
		Debug:        v.GetBool("debug"),
	}, nil
}

// loadEnvFiles loads .env and then .env.local, which overrides it. Missing
// or unreadable files are ignored.
func loadEnvFiles() {
	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}
}

// SaveConfig writes cfg as a config file in dir.
func SaveConfig(cfg *Config, dir string) (string, error) {
	v := viper.New()
	v.SetFs(AppFs)
	v.Set("schema_path", cfg.SchemaPath)
	v.Set("migration_dir", cfg.MigrationDir)
	v.Set("dialect", string(cfg.Dialect))
	if cfg.DatabaseURL != "" {
		v.Set("database_url", cfg.DatabaseURL)
	}

	if err := AppFs.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName+".yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}
