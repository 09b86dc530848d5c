// Package sqliteutil opens the embedded databases used for durable
// state. A target is either a path to a local sqlite file or a
// libsql:// / https:// URL pointing at a remote libsql instance.
package sqliteutil

import (
	"database/sql"
	"os"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

func isRemote(target string) bool {
	return strings.HasPrefix(target, "libsql://") ||
		strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "http://") ||
		strings.HasPrefix(target, "wss://")
}

// OpenDB opens `target` and ensures `schema` has been applied.
func OpenDB(schema, target string) (*sql.DB, error) {
	if isRemote(target) {
		db, err := sql.Open("libsql", target)
		if err != nil {
			return nil, err
		}
		_, err = db.Exec(schema)
		if err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}

	_, statErr := os.Stat(target)
	if os.IsNotExist(statErr) {
		f, err := os.Create(target)
		if err != nil {
			return nil, err
		}
		f.Close()
	}

	db, err := sql.Open("sqlite", target)
	if err != nil {
		return nil, err
	}
	// sqlite does not handle concurrent writers from multiple
	// connections well, see:
	// https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, err
	}

	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
