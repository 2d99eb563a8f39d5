package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/tokenwatch/transferscan/internal/db"
	"github.com/tokenwatch/transferscan/internal/logger"
)

//go:embed 001_transfer_events.sql
var mig001 string

//go:embed 002_processed_blocks.sql
var mig002 string

func all() []db.Migration {
	return []db.Migration{
		{ID: "001_transfer_events.sql", SQL: mig001},
		{ID: "002_processed_blocks.sql", SQL: mig002},
	}
}

// RunMigrations brings the database at dbPath up to the current schema.
func RunMigrations(log *logger.Logger, dbPath string) error {
	return db.RunMigrations(log, dbPath, all())
}

// RunMigrationsDB brings an open database up to the current schema.
func RunMigrationsDB(log *logger.Logger, database *sql.DB) error {
	return db.RunMigrationsDB(log, database, all())
}
