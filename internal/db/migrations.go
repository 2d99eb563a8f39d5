package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/tokenwatch/transferscan/internal/logger"
)

const upDownSeparator = "-- +migrate Up"

// Migration is one embedded SQL migration. The SQL must contain a
// "-- +migrate Up" separator; an optional "-- +migrate Down" section precedes
// it.
type Migration struct {
	ID  string
	SQL string
}

// RunMigrations applies pending migrations to the database at dbPath.
func RunMigrations(log *logger.Logger, dbPath string, migrations []Migration) error {
	db, err := NewSQLiteDB(dbPath)
	if err != nil {
		return fmt.Errorf("error creating DB: %w", err)
	}
	defer db.Close()

	return RunMigrationsDB(log, db, migrations)
}

// RunMigrationsDB applies pending migrations to an open database.
func RunMigrationsDB(log *logger.Logger, db *sql.DB, migrations []Migration) error {
	source := &migrate.MemoryMigrationSource{Migrations: make([]*migrate.Migration, 0, len(migrations))}

	for _, m := range migrations {
		parts := strings.Split(m.SQL, upDownSeparator)
		if len(parts) < 2 {
			return fmt.Errorf("migration %s missing %q separator", m.ID, upDownSeparator)
		}

		downSQL := parts[0]
		upSQL := strings.TrimSpace(parts[1])

		downMarker := "-- +migrate Down"
		if idx := strings.Index(downSQL, downMarker); idx != -1 {
			downSQL = strings.TrimSpace(downSQL[idx+len(downMarker):])
		} else {
			downSQL = strings.TrimSpace(downSQL)
		}

		source.Migrations = append(source.Migrations, &migrate.Migration{
			Id:   m.ID,
			Up:   []string{upSQL},
			Down: []string{downSQL},
		})
	}

	applied, err := migrate.Exec(db, "sqlite3", source, migrate.Up)
	if err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	if applied > 0 {
		log.Infof("applied %d database migration(s)", applied)
	}

	return nil
}
