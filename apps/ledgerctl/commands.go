package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/google/subcommands"
	"github.com/keep94/cardledger/apps/common"
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/aggregators"
	"github.com/keep94/cardledger/fin/consumers"
	"github.com/keep94/cardledger/fin/filters"
	"github.com/keep94/cardledger/fin/ledger"
	"github.com/keep94/cardledger/fin/occurrences"
	"github.com/keep94/cardledger/logging"
	"github.com/keep94/goconsume"
)

var (
	errNoId = errors.New("-id required")
)

var kCommands = []subcommands.Command{
	&occurrencesCmd{},
	&dayCmd{},
	&addCmd{},
	&detachCmd{},
	&truncateCmd{},
	&deleteCmd{},
	&balanceCmd{},
	&invoicesCmd{},
	&totalsCmd{},
	&cardsCmd{},
	&budgetsCmd{},
	&startBalanceCmd{},
	&syncCmd{},
	&profilesCmd{},
	&forgetCmd{},
}

// lister is implemented by remotes that can enumerate their paths.
type lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// keyedCache is implemented by caches that can enumerate and delete keys.
type keyedCache interface {
	Keys() ([]string, error)
	Delete(key string) error
}

type occurrencesCmd struct {
	start, end string
	desc       string
	method     string
	concrete   bool
	planned    bool
	pageSize   int
	pageNo     int
}

func (*occurrencesCmd) Name() string     { return "occurrences" }
func (*occurrencesCmd) Synopsis() string { return "List occurrences in a date range." }
func (*occurrencesCmd) Usage() string {
	return "occurrences [-start YYYY-MM-DD] [-end YYYY-MM-DD] [-desc text] [-method card]\n"
}

func (c *occurrencesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.start, "start", "", "first operation date, default today")
	f.StringVar(&c.end, "end", "", "last operation date, default 30 days after start")
	f.StringVar(&c.desc, "desc", "", "description contains")
	f.StringVar(&c.method, "method", "", "payment method")
	f.BoolVar(&c.concrete, "concrete", false, "skip virtual occurrences")
	f.BoolVar(&c.planned, "planned", false, "planned occurrences only")
	f.IntVar(&c.pageSize, "pagesize", 50, "occurrences per page")
	f.IntVar(&c.pageNo, "page", 0, "0-based page number")
}

func (c *occurrencesCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		s := env.Session
		start, err := parseDate(c.start, s.Today())
		if err != nil {
			return err
		}
		end := start.AddDate(0, 0, 30)
		if c.end != "" {
			if end, err = parseDate(c.end, s.Today()); err != nil {
				return err
			}
		}
		page := consumers.NewOccurrencePage(c.pageSize, c.pageNo)
		filter := filters.CompileOccurrenceSearchSpec(&filters.RecordSearchSpec{
			Desc:         c.desc,
			Method:       c.method,
			PlannedOnly:  c.planned,
			ConcreteOnly: c.concrete,
		})
		s.OccurrencesInRange(start, end, goconsume.Filter(page, filter))
		page.Finalize()
		for i := range page.Occurrences {
			writeOccurrence(os.Stdout, &page.Occurrences[i])
		}
		if page.More {
			fmt.Printf("more: -page %d\n", c.pageNo+1)
		}
		return nil
	})
}

type dayCmd struct {
	date string
}

func (*dayCmd) Name() string     { return "day" }
func (*dayCmd) Synopsis() string { return "List occurrences posting on a date." }
func (*dayCmd) Usage() string    { return "day [-date YYYY-MM-DD]\n" }

func (c *dayCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "posting date, default today")
}

func (c *dayCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		date, err := parseDate(c.date, env.Session.Today())
		if err != nil {
			return err
		}
		totaler := &aggregators.Totaler{}
		env.Session.TxByDate(date, consumers.Compose(
			goconsume.ConsumerFunc(func(ptr interface{}) {
				writeOccurrence(os.Stdout, ptr.(*occurrences.Occurrence))
			}),
			consumers.FromOccurrenceAggregator(totaler)))
		fmt.Println("total", fin.FormatUSD(totaler.Total))
		return nil
	})
}

type addCmd struct {
	desc       string
	amount     string
	date       string
	method     string
	recurrence string
	planned    bool
	budget     string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "Add a record." }
func (*addCmd) Usage() string {
	return "add -desc text -amount -12.34 [-date YYYY-MM-DD] [-method card] [-recurrence monthly]\n"
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.desc, "desc", "", "description")
	f.StringVar(&c.amount, "amount", "", "amount in dollars, negative for expenses")
	f.StringVar(&c.date, "date", "", "operation date, default today")
	f.StringVar(&c.method, "method", "", "card name, default Cash")
	f.StringVar(&c.recurrence, "recurrence", "", "recurrence pattern for masters")
	f.BoolVar(&c.planned, "planned", false, "mark as planned")
	f.StringVar(&c.budget, "budget", "", "budget id")
}

func (c *addCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		value, err := fin.ParseUSD(c.amount)
		if err != nil {
			return fmt.Errorf("bad -amount %q: %w", c.amount, err)
		}
		date, err := parseDate(c.date, env.Session.Today())
		if err != nil {
			return err
		}
		record := fin.Record{
			Desc:       c.desc,
			Value:      value,
			OpDate:     date,
			Method:     c.method,
			Recurrence: c.recurrence,
			BudgetTag:  c.budget,
		}
		if c.planned {
			record.Status = fin.Planned
		}
		added, _, err := env.Session.AddRecord(record)
		if err != nil {
			return err
		}
		writeRecord(os.Stdout, &added)
		return nil
	})
}

type detachCmd struct {
	id     string
	date   string
	today  bool
	amount string
	desc   string
	done   bool
}

func (*detachCmd) Name() string     { return "detach" }
func (*detachCmd) Synopsis() string { return "Detach one occurrence of a recurring record." }
func (*detachCmd) Usage() string {
	return "detach -id id [-date YYYY-MM-DD] [-today] [-amount -12.34] [-desc text] [-done]\n"
}

func (c *detachCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "master, detached or virtual occurrence id")
	f.StringVar(&c.date, "date", "", "occurrence date, implied by virtual ids")
	f.BoolVar(&c.today, "today", false, "move the detached record to today")
	f.StringVar(&c.amount, "amount", "", "new amount")
	f.StringVar(&c.desc, "desc", "", "new description")
	f.BoolVar(&c.done, "done", false, "mark the detached record executed")
}

func (c *detachCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		if c.id == "" {
			return errNoId
		}
		date, err := fin.ParseDate(c.date)
		if err != nil {
			return fmt.Errorf("bad -date %q", c.date)
		}
		var value int64
		if c.amount != "" {
			if value, err = fin.ParseUSD(c.amount); err != nil {
				return fmt.Errorf("bad -amount %q: %w", c.amount, err)
			}
		}
		child, _, err := env.Session.DetachSingle(c.id, date, ledger.DetachOptions{
			MoveToToday: c.today,
			Update: func(r *fin.Record) bool {
				if c.amount != "" {
					r.Value = value
				}
				if c.desc != "" {
					r.Desc = c.desc
				}
				if c.done {
					r.Status = fin.Executed
				}
				return true
			},
		})
		if err != nil {
			return err
		}
		writeRecord(os.Stdout, &child)
		return nil
	})
}

type truncateCmd struct {
	id   string
	date string
}

func (*truncateCmd) Name() string     { return "truncate" }
func (*truncateCmd) Synopsis() string { return "End a recurring record before a date." }
func (*truncateCmd) Usage() string    { return "truncate -id id -date YYYY-MM-DD\n" }

func (c *truncateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "master or occurrence id")
	f.StringVar(&c.date, "date", "", "first date without occurrences")
}

func (c *truncateCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		if c.id == "" {
			return errNoId
		}
		date, err := fin.ParseDate(c.date)
		if err != nil {
			return fmt.Errorf("bad -date %q", c.date)
		}
		changes, err := env.Session.TruncateFuture(c.id, date)
		if err != nil {
			return err
		}
		writeChanges(os.Stdout, changes)
		return nil
	})
}

type deleteCmd struct {
	id   string
	date string
	all  bool
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "Delete a record or one occurrence." }
func (*deleteCmd) Usage() string {
	return "delete -id id [-date YYYY-MM-DD | -all]\n"
}

func (c *deleteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "record or occurrence id")
	f.StringVar(&c.date, "date", "", "delete only the occurrence on this date")
	f.BoolVar(&c.all, "all", false, "delete a master with everything detached from it")
}

func (c *deleteCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		if c.id == "" {
			return errNoId
		}
		var changes fin.Changes
		var err error
		switch {
		case c.all:
			changes, err = env.Session.DeleteAll(c.id)
		case c.date != "" || strings.Contains(c.id, "@"):
			date, perr := fin.ParseDate(c.date)
			if perr != nil {
				return fmt.Errorf("bad -date %q", c.date)
			}
			changes, err = env.Session.DeleteOccurrence(c.id, date)
		default:
			changes, err = env.Session.RemoveRecord(c.id)
		}
		if err != nil {
			return err
		}
		writeChanges(os.Stdout, changes)
		return nil
	})
}

type balanceCmd struct {
	date         string
	reservations bool
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "Show the balance as of a date." }
func (*balanceCmd) Usage() string    { return "balance [-date YYYY-MM-DD] [-reservations]\n" }

func (c *balanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "as of date, default today")
	f.BoolVar(&c.reservations, "reservations", false, "subtract budget reservations")
}

func (c *balanceCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		date, err := parseDate(c.date, env.Session.Today())
		if err != nil {
			return err
		}
		total, planned := env.Session.Balance(date, c.reservations)
		fmt.Printf(
			"%s  balance %s  planned %s\n",
			fin.FormatDate(date), fin.FormatUSD(total), fin.FormatUSD(planned))
		return nil
	})
}

type invoicesCmd struct {
	start, end string
}

func (*invoicesCmd) Name() string     { return "invoices" }
func (*invoicesCmd) Synopsis() string { return "Total occurrences by method and posting date." }
func (*invoicesCmd) Usage() string {
	return "invoices [-start YYYY-MM-DD] [-end YYYY-MM-DD]\n"
}

func (c *invoicesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.start, "start", "", "first operation date, default today")
	f.StringVar(&c.end, "end", "", "last operation date, default 60 days after start")
}

func (c *invoicesCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		s := env.Session
		start, err := parseDate(c.start, s.Today())
		if err != nil {
			return err
		}
		end := start.AddDate(0, 0, 60)
		if c.end != "" {
			if end, err = parseDate(c.end, s.Today()); err != nil {
				return err
			}
		}
		totaler := aggregators.NewByMethodTotaler()
		s.OccurrencesInRange(
			start, end, consumers.FromOccurrenceAggregator(totaler))
		for _, t := range totaler.Totals() {
			fmt.Printf(
				"%s  %-10s  %12s  %d\n",
				fin.FormatDate(t.PostDate), t.Method, fin.FormatUSD(t.Total), t.Count)
		}
		return nil
	})
}

type totalsCmd struct {
	start, end string
	yearly     bool
}

func (*totalsCmd) Name() string     { return "totals" }
func (*totalsCmd) Synopsis() string { return "Total occurrences by month or year of posting." }
func (*totalsCmd) Usage() string {
	return "totals [-start YYYY-MM-DD] [-end YYYY-MM-DD] [-yearly]\n"
}

func (c *totalsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.start, "start", "", "first posting date, default start of this month")
	f.StringVar(&c.end, "end", "", "posting end date exclusive, default 12 months after start")
	f.BoolVar(&c.yearly, "yearly", false, "total by year instead of by month")
}

func (c *totalsCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		s := env.Session
		today := s.Today()
		start, err := parseDate(c.start, today.AddDate(0, 0, 1-today.Day()))
		if err != nil {
			return err
		}
		end, err := parseDate(c.end, start.AddDate(1, 0, 0))
		if err != nil {
			return err
		}
		unit := fin.Months
		if c.yearly {
			unit = fin.Years
		}
		totaler := aggregators.NewByPeriodTotaler(start, end, unit)
		// Card records post up to about two months after their operation.
		s.OccurrencesInRange(
			start.AddDate(0, -3, 0),
			end,
			consumers.FromOccurrenceAggregator(totaler))
		for _, pt := range totaler.Totals() {
			fmt.Printf(
				"%s  %s  %12s  %12s  %d\n",
				fin.FormatDate(pt.Start),
				fin.FormatDate(pt.End.AddDate(0, 0, -1)),
				fin.FormatUSD(pt.Total),
				fin.FormatUSD(pt.Planned),
				pt.Count)
		}
		return nil
	})
}

type cardsCmd struct {
	set string
}

func (*cardsCmd) Name() string     { return "cards" }
func (*cardsCmd) Synopsis() string { return "List or replace the cards." }
func (*cardsCmd) Usage() string    { return "cards [-set name:closeDay:dueDay,...]\n" }

func (c *cardsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.set, "set", "", "replace the cards")
}

func (c *cardsCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		if c.set != "" {
			cards, err := parseCards(c.set)
			if err != nil {
				return err
			}
			changes, err := env.Session.SetCards(cards)
			if err != nil {
				return err
			}
			writeChanges(os.Stdout, changes)
		}
		for _, card := range env.Session.Cards() {
			fmt.Printf("%-10s  closes %2d  due %2d\n", card.Name, card.CloseDay, card.DueDay)
		}
		return nil
	})
}

type budgetsCmd struct {
	name       string
	amount     string
	recurrence string
	start      string
	method     string
	remove     string
}

func (*budgetsCmd) Name() string     { return "budgets" }
func (*budgetsCmd) Synopsis() string { return "List, add or remove budgets." }
func (*budgetsCmd) Usage() string {
	return "budgets [-name text -amount 100 -recurrence monthly [-start YYYY-MM-DD]] [-remove id]\n"
}

func (c *budgetsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "name of budget to add")
	f.StringVar(&c.amount, "amount", "", "amount reserved each cycle")
	f.StringVar(&c.recurrence, "recurrence", "monthly", "cycle pattern")
	f.StringVar(&c.start, "start", "", "first day of the first cycle, default today")
	f.StringVar(&c.method, "method", "", "card used for reservations")
	f.StringVar(&c.remove, "remove", "", "id of budget to remove")
}

func (c *budgetsCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		s := env.Session
		list := s.Budgets()
		changed := false
		if c.remove != "" {
			kept := list[:0]
			for _, b := range list {
				if b.Id != c.remove {
					kept = append(kept, b)
				}
			}
			changed = len(kept) != len(list)
			list = kept
		}
		if c.name != "" {
			amount, err := fin.ParseUSD(c.amount)
			if err != nil {
				return fmt.Errorf("bad -amount %q: %w", c.amount, err)
			}
			start, err := parseDate(c.start, s.Today())
			if err != nil {
				return err
			}
			list = append(list, fin.Budget{
				Name:       c.name,
				Amount:     amount,
				Recurrence: c.recurrence,
				StartDate:  start,
				Method:     c.method,
				Active:     true,
			})
			changed = true
		}
		if changed {
			if err := s.SetBudgets(list); err != nil {
				return err
			}
		}
		for _, b := range s.Budgets() {
			fmt.Printf(
				"%s  %-20s  %12s  %s  %v\n",
				b.Id, b.Name, fin.FormatUSD(b.Amount), b.Recurrence, b.Active)
		}
		for _, r := range s.Reservations() {
			fmt.Printf("reserved %s  %12s\n", r.Desc, fin.FormatUSD(-r.Value))
		}
		return nil
	})
}

type startBalanceCmd struct {
	set string
}

func (*startBalanceCmd) Name() string     { return "startbalance" }
func (*startBalanceCmd) Synopsis() string { return "Show or set the opening balance." }
func (*startBalanceCmd) Usage() string    { return "startbalance [-set 123.45]\n" }

func (c *startBalanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.set, "set", "", "new opening balance")
}

func (c *startBalanceCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		if c.set != "" {
			value, err := fin.ParseUSD(c.set)
			if err != nil {
				return fmt.Errorf("bad -set %q: %w", c.set, err)
			}
			if err := env.Session.SetStartBalance(value); err != nil {
				return err
			}
		}
		fmt.Println(fin.FormatUSD(env.Session.StartBalance()))
		return nil
	})
}

type syncCmd struct{}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "Push pending changes to the remote." }
func (*syncCmd) Usage() string    { return "sync\n" }
func (*syncCmd) SetFlags(f *flag.FlagSet) {}

func (c *syncCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		ran, err := env.Session.ConnectivityRegained(ctx)
		if err != nil {
			return err
		}
		if !ran {
			if err := env.Session.Flush(ctx); err != nil {
				return err
			}
		}
		logger := logging.FromContext(ctx)
		logger.Debug().Strs("dirty", env.Session.Dirty()).Msg("Synced")
		if env.Session.Pending() {
			return fmt.Errorf("still pending: %s", strings.Join(env.Session.Dirty(), ", "))
		}
		fmt.Println("in sync")
		return nil
	})
}

type profilesCmd struct {
	cached bool
}

func (*profilesCmd) Name() string     { return "profiles" }
func (*profilesCmd) Synopsis() string { return "List the profiles stored on the remote." }
func (*profilesCmd) Usage() string    { return "profiles [-cached]\n" }

func (c *profilesCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.cached, "cached", false, "list the profiles in the local cache instead")
}

func (c *profilesCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		var names []string
		if c.cached {
			cache, ok := env.Cache.(keyedCache)
			if !ok {
				return errors.New("cache cannot list profiles")
			}
			keys, err := cache.Keys()
			if err != nil {
				return err
			}
			names = cachedProfiles(keys)
		} else {
			remote, ok := env.Remote.(lister)
			if !ok {
				return errors.New("remote cannot list profiles")
			}
			prefix := path.Dir(env.Session.Path(""))
			paths, err := remote.List(ctx, prefix)
			if err != nil {
				return err
			}
			names = profileNames(prefix, paths)
		}
		for _, p := range names {
			fmt.Println(p)
		}
		return nil
	})
}

type forgetCmd struct{}

func (*forgetCmd) Name() string     { return "forget" }
func (*forgetCmd) Synopsis() string { return "Remove a profile from the local cache." }
func (*forgetCmd) Usage() string {
	return "forget profile\nUnsynced writes of profile are lost.\n"
}
func (*forgetCmd) SetFlags(f *flag.FlagSet) {}

func (c *forgetCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	profile := f.Arg(0)
	return withEnv(ctx, func(ctx context.Context, env *common.Env) error {
		if profile == env.Session.Profile() {
			return fmt.Errorf("%s is the open profile", profile)
		}
		cache, ok := env.Cache.(keyedCache)
		if !ok {
			return errors.New("cache cannot delete profiles")
		}
		keys, err := cache.Keys()
		if err != nil {
			return err
		}
		for _, key := range profileKeys(profile, keys) {
			if err := cache.Delete(key); err != nil {
				return err
			}
			fmt.Println("removed", key)
		}
		return nil
	})
}
