// Package for_sqlite stores the ledger cache in a sqlite database.
package for_sqlite

import (
	"time"

	"github.com/keep94/appcommon/db/sqlite_db"
	"github.com/keep94/gosqlite/sqlite"
)

const (
	kSQLCacheByKey    = "select value from cache_entries where key = ?"
	kSQLReplaceCache  = "insert or replace into cache_entries (key, value, modified) values (?, ?, ?)"
	kSQLCacheKeys     = "select key from cache_entries order by key"
	kSQLDeleteCache   = "delete from cache_entries where key = ?"
	kSQLRemoteByPath  = "select value, generation from remote_entries where path = ?"
	kSQLReplaceRemote = "insert or replace into remote_entries (path, value, generation) values (?, ?, ?)"
)

// New returns a cache backed by db. Tables must already exist; see
// sqlite_setup.
func New(db *sqlite_db.Db) Cache {
	return Cache{db}
}

// Cache implements findb.Cache.
type Cache struct {
	db sqlite_db.Doer
}

func (c Cache) Get(key string, defaultValue []byte) (result []byte, err error) {
	err = c.db.Do(func(conn *sqlite.Conn) error {
		var found bool
		result, found, err = get(conn, key)
		if err == nil && !found {
			result = defaultValue
		}
		return err
	})
	return
}

func (c Cache) Set(key string, value []byte) error {
	return c.db.Do(func(conn *sqlite.Conn) error {
		return conn.Exec(
			kSQLReplaceCache,
			key,
			string(value),
			time.Now().UTC().Format(time.RFC3339))
	})
}

// Keys returns every key in the cache in ascending order.
func (c Cache) Keys() (keys []string, err error) {
	err = c.db.Do(func(conn *sqlite.Conn) error {
		stmt, err := conn.Prepare(kSQLCacheKeys)
		if err != nil {
			return err
		}
		defer stmt.Finalize()
		if err := stmt.Exec(); err != nil {
			return err
		}
		for stmt.Next() {
			var key string
			if err := stmt.Scan(&key); err != nil {
				return err
			}
			keys = append(keys, key)
		}
		return nil
	})
	return
}

// Delete removes key from the cache.
func (c Cache) Delete(key string) error {
	return c.db.Do(func(conn *sqlite.Conn) error {
		return conn.Exec(kSQLDeleteCache, key)
	})
}

func get(conn *sqlite.Conn, key string) (value []byte, found bool, err error) {
	stmt, err := conn.Prepare(kSQLCacheByKey)
	if err != nil {
		return
	}
	defer stmt.Finalize()
	if err = stmt.Exec(key); err != nil {
		return
	}
	if !stmt.Next() {
		return
	}
	var s string
	if err = stmt.Scan(&s); err != nil {
		return
	}
	return []byte(s), true, nil
}
