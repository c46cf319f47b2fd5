// Command ledgerctl inspects and edits a cardledger profile from the
// command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/keep94/cardledger/apps/common"
	"github.com/keep94/cardledger/logging"
)

var (
	fConfig *common.Flags
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range kCommands {
		commander.Register(c, "")
	}
	fConfig = common.RegisterFlags(flag.CommandLine)
	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// withEnv opens the configured profile, runs f and closes the profile.
func withEnv(
	ctx context.Context,
	f func(ctx context.Context, env *common.Env) error) subcommands.ExitStatus {
	config, err := fConfig.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	logger := logging.New(config.LogLevel)
	ctx = logging.WithContext(ctx, logger)
	env, err := common.Open(ctx, config, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer env.Close()
	if err := f(ctx, env); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if env.Session.Pending() {
		if err := env.Session.Flush(ctx); err != nil {
			logger.Warn().Err(err).Strs("dirty", env.Session.Dirty()).Msg(
				"Changes kept locally until the remote is reachable")
		}
	}
	return subcommands.ExitSuccess
}
