package store

import (
	"database/sql"
	"fmt"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/migrations"
)

// RunMigrations applies all pending service migrations for dialect
// ("sqlite" or "postgres") from the embedded SQL files.
func RunMigrations(db *sql.DB, dialect string) error {
	if err := migrations.Up(db, dialect, migrations.FS, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
