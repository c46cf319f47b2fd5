// Command ledgerd serves a cardledger profile as a JSON API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	applog "github.com/keep94/appcommon/logging"
	"github.com/keep94/cardledger/apps/common"
	"github.com/keep94/cardledger/apps/ledgerd/ac"
	"github.com/keep94/cardledger/apps/ledgerd/api"
	"github.com/keep94/cardledger/apps/ledgerd/export"
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/logging"
	"github.com/keep94/weblogs"
)

const (
	kShutdownTimeout = 10 * time.Second
)

var (
	fConfig = common.RegisterFlags(flag.CommandLine)
)

func main() {
	flag.Parse()
	config, err := fConfig.Load()
	if err != nil {
		logger := logging.New("")
		logger.Error().Err(err).Msg("Bad configuration")
		flag.Usage()
		os.Exit(2)
	}
	logger := logging.New(config.LogLevel)
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	env, err := common.Open(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("profile", config.Profile).Msg("Open failed")
	}
	defer env.Close()
	env.Session.OnChange(func(collection string, changes fin.Changes) {
		logger.Debug().
			Str("collection", collection).
			Strs("added", changes.Added).
			Strs("updated", changes.Updated).
			Strs("removed", changes.Removed).
			Msg("Changed")
	})
	handler := newHandler(env, config)
	server := &http.Server{
		Addr: config.Http,
		Handler: weblogs.HandlerWithOptions(
			handler,
			&weblogs.Options{Logger: applog.ApacheCommonLoggerWithLatency()}),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), kShutdownTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	logger.Info().
		Str("addr", config.Http).
		Str("profile", config.Profile).
		Str("remote", config.Remote).
		Msg("Serving")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("Serve failed")
		return
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), kShutdownTimeout)
	defer cancel()
	if err := env.Session.Flush(flushCtx); err != nil {
		logger.Warn().Err(err).Strs("dirty", env.Session.Dirty()).Msg(
			"Changes kept in the cache until next start")
	}
}

func newHandler(env *common.Env, config *common.Config) http.Handler {
	logger := logging.WithFields(
		logging.New(config.LogLevel),
		map[string]interface{}{"profile": config.Profile})
	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", api.New(env.Session, logger)))
	mux.Handle("/export", &export.Handler{Store: env.Session})
	mux.Handle(
		"/acdesc",
		&ac.Handler{
			Store: env.Session,
			Field: func(r *fin.Record) string { return r.Desc }})
	mux.Handle(
		"/acmethod",
		&ac.Handler{
			Store: env.Session,
			Field: func(r *fin.Record) string { return r.Method }})
	return mux
}
