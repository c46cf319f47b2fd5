// Package sqlite_setup sets up a sqlite database for the ledger cache.
package sqlite_setup

import (
	"github.com/keep94/gosqlite/sqlite"
)

// SetUpTables creates all needed tables in database.
func SetUpTables(conn *sqlite.Conn) error {
	err := conn.Exec("create table if not exists cache_entries (key TEXT PRIMARY KEY, value TEXT, modified TEXT)")
	if err != nil {
		return err
	}
	err = conn.Exec("create table if not exists remote_entries (path TEXT PRIMARY KEY, value TEXT, generation INTEGER)")
	if err != nil {
		return err
	}
	return nil
}
