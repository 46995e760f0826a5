// Package db opens the scan database and applies its schema migrations.
package db

import (
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/depthscan/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var logf = monitoring.Component("db")

// pragmas are applied to every connection opened by NewDB.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// DB wraps the scan database handle.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the SQLite database at path, applies
// connection PRAGMAs and migrates the schema to the latest version.
func NewDB(path string) (*DB, error) {
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection keeps PRAGMAs and
	// in-memory databases consistent.
	raw.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := raw.Exec(p); err != nil {
			raw.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}

	db := &DB{raw}
	if err := db.MigrateUp(); err != nil {
		raw.Close()
		return nil, err
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		raw.Close()
		return nil, err
	}
	logf("opened %s at schema version %d", path, version)
	return db, nil
}
