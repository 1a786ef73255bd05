// Package migrations holds the embedded goose migrations for both databases
// this module owns: the reference service schema (FS) and the on-device
// key-value schema (LocalFS).
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
)

// FS contains the service schema migrations.
//
//go:embed *.sql
var FS embed.FS

// LocalFS contains the device key-value schema under local/.
//
//go:embed local/*.sql
var LocalFS embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// Up applies every pending migration found in dir of fsys.
func Up(db *sql.DB, dialect string, fsys fs.FS, dir string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
