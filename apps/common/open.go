package common

import (
	"context"
	"fmt"

	"github.com/keep94/appcommon/db/sqlite_db"
	"github.com/keep94/cardledger/fin/findb"
	"github.com/keep94/cardledger/fin/findb/for_gcs"
	"github.com/keep94/cardledger/fin/findb/for_memory"
	"github.com/keep94/cardledger/fin/findb/for_sqlite"
	"github.com/keep94/cardledger/fin/findb/sqlite_setup"
	"github.com/keep94/cardledger/fin/session"
	"github.com/keep94/gosqlite/sqlite"
	"github.com/rs/zerolog"
)

// Env is what a binary runs against: an open session plus the stores
// behind it.
type Env struct {
	Session *session.Session
	Cache   findb.Cache
	Remote  findb.Remote
	closers []func() error
}

// Close closes the session, then the stores.
func (e *Env) Close() error {
	var firstErr error
	if e.Session != nil {
		firstErr = e.Session.Close()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenDb opens the sqlite database at path, creating the tables if
// needed.
func OpenDb(path string) (*sqlite_db.Db, error) {
	conn, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	dbase := sqlite_db.New(conn)
	err = dbase.Do(func(conn *sqlite.Conn) error {
		return sqlite_setup.SetUpTables(conn)
	})
	if err != nil {
		dbase.Close()
		return nil, fmt.Errorf("set up %s: %w", path, err)
	}
	return dbase, nil
}

// Open wires the cache, the remote and the session config describes.
func Open(
	ctx context.Context, config *Config, logger zerolog.Logger) (
	env *Env, err error) {
	env = &Env{}
	defer func() {
		if err != nil {
			env.Close()
			env = nil
		}
	}()
	poll, err := config.Poll()
	if err != nil {
		return
	}
	if config.CacheDb == "" {
		env.Cache = for_memory.NewCache()
	} else {
		var dbase *sqlite_db.Db
		if dbase, err = OpenDb(config.CacheDb); err != nil {
			return
		}
		env.closers = append(env.closers, dbase.Close)
		env.Cache = for_sqlite.New(dbase)
	}
	onError := func(err error) {
		logger.Warn().Err(err).Msg("Remote poll failed")
	}
	switch config.Remote {
	case RemoteMemory:
		env.Remote = for_memory.NewRemote()
	case RemoteSqlite:
		var dbase *sqlite_db.Db
		if dbase, err = OpenDb(config.RemoteDb); err != nil {
			return
		}
		env.closers = append(env.closers, dbase.Close)
		remote := for_sqlite.NewRemote(dbase)
		remote.PollInterval = poll
		remote.OnError = onError
		env.Remote = remote
	case RemoteGCS:
		var remote *for_gcs.Remote
		remote, err = for_gcs.NewRemoteWithCredentials(
			ctx, config.Bucket, config.Credentials)
		if err != nil {
			return
		}
		env.closers = append(env.closers, remote.Close)
		remote.PollInterval = poll
		remote.OnError = onError
		env.Remote = remote
	}
	env.Session, err = session.Open(ctx, session.Config{
		Profile: config.Profile,
		Prefix:  config.Prefix,
		Cache:   env.Cache,
		Remote:  env.Remote,
		Logger:  &logger,
	})
	return
}
