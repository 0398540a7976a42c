package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/satishbabariya/schemamigrate/cli/internal/config"
	"github.com/satishbabariya/schemamigrate/internal/debug"
	"github.com/satishbabariya/schemamigrate/migrate"
	"github.com/satishbabariya/schemamigrate/migrate/declare"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
	"github.com/satishbabariya/schemamigrate/migrate/sqlgen"
	"github.com/satishbabariya/schemamigrate/migrate/store"
)

var errNoDatabase = errors.New("no database configured: set database_url, SCHEMAMIGRATE_DATABASE_URL or DATABASE_URL")

// loadTarget parses the configured declaration file.
func loadTarget() (schema.Tables, error) {
	tables, err := declare.Load(config.AppFs, cfg.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load declaration %s: %w", cfg.SchemaPath, err)
	}
	return tables, nil
}

func newEngine() (*migrate.Engine, error) {
	logger := debug.Logger()
	return migrate.NewEngine(migrate.Options{
		Store:   store.NewDir(config.AppFs, cfg.MigrationDir, store.WithLogger(logger)),
		Dialect: cfg.Dialect,
		Logger:  logger,
	})
}

// openDB connects to the configured database and pings it.
func openDB(ctx context.Context) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, errNoDatabase
	}
	dsn, err := dataSourceName(cfg.Dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Dialect == sqlgen.SQLite {
		// foreign key pragmas and table rebuilds are per connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// dataSourceName adapts a configured URL to the driver's expectations:
// SQLite URLs lose their scheme and MySQL DSNs always parse timestamps.
func dataSourceName(dialect sqlgen.Dialect, url string) (string, error) {
	switch dialect {
	case sqlgen.SQLite:
		for _, prefix := range []string{"sqlite3://", "sqlite://"} {
			if strings.HasPrefix(url, prefix) {
				return strings.TrimPrefix(url, prefix), nil
			}
		}
		return url, nil
	case sqlgen.MySQL:
		c, err := mysql.ParseDSN(strings.TrimPrefix(url, "mysql://"))
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		c.ParseTime = true
		return c.FormatDSN(), nil
	default:
		return url, nil
	}
}
