package for_sqlite

import (
	"context"
	"time"

	"github.com/keep94/appcommon/db/sqlite_db"
	"github.com/keep94/cardledger/fin/findb"
	"github.com/keep94/gosqlite/sqlite"
)

const (
	kDefaultPollInterval = 2 * time.Second
)

// Remote implements findb.Remote on a sqlite database file shared by
// several processes on one machine. Subscriptions poll.
type Remote struct {
	db sqlite_db.Doer
	// How often subscriptions poll. Zero means 2s.
	PollInterval time.Duration
	// If non-nil, receives polling failures.
	OnError func(error)
}

// NewRemote returns a remote backed by db. Tables must already exist; see
// sqlite_setup.
func NewRemote(db *sqlite_db.Db) *Remote {
	return &Remote{db: db}
}

func (r *Remote) Read(ctx context.Context, path string) ([]byte, error) {
	snapshot, err := r.fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	if !snapshot.Exists {
		return nil, findb.NoSuchPath
	}
	return snapshot.Value, nil
}

func (r *Remote) Write(ctx context.Context, path string, value []byte) error {
	path, err := findb.CleanPath(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Do(func(conn *sqlite.Conn) error {
		snapshot, err := fetch(conn, path)
		if err != nil {
			return err
		}
		return conn.Exec(
			kSQLReplaceRemote, path, string(value), snapshot.Generation+1)
	})
}

func (r *Remote) Subscribe(
	ctx context.Context, path string, callback findb.Callback) (
	findb.Unsubscriber, error) {
	path, err := findb.CleanPath(path)
	if err != nil {
		return nil, err
	}
	interval := r.PollInterval
	if interval <= 0 {
		interval = kDefaultPollInterval
	}
	return findb.PollSubscribe(
		ctx,
		interval,
		func(ctx context.Context) (findb.Snapshot, error) {
			return r.fetch(ctx, path)
		},
		callback,
		r.OnError)
}

func (r *Remote) fetch(ctx context.Context, path string) (
	snapshot findb.Snapshot, err error) {
	if path, err = findb.CleanPath(path); err != nil {
		return
	}
	if err = ctx.Err(); err != nil {
		return
	}
	err = r.db.Do(func(conn *sqlite.Conn) (err error) {
		snapshot, err = fetch(conn, path)
		return
	})
	return
}

func fetch(conn *sqlite.Conn, path string) (
	snapshot findb.Snapshot, err error) {
	stmt, err := conn.Prepare(kSQLRemoteByPath)
	if err != nil {
		return
	}
	defer stmt.Finalize()
	if err = stmt.Exec(path); err != nil {
		return
	}
	if !stmt.Next() {
		return
	}
	var value string
	if err = stmt.Scan(&value, &snapshot.Generation); err != nil {
		return
	}
	snapshot.Value = []byte(value)
	snapshot.Exists = true
	return
}
