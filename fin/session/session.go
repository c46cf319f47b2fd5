// Package session ties a profile's ledger, cards, budgets and opening
// balance to the local cache and the shared remote store. A Session is the
// explicit context every operation runs in; nothing is global.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keep94/appcommon/date_util"
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/aggregators"
	"github.com/keep94/cardledger/fin/budgets"
	"github.com/keep94/cardledger/fin/consumers"
	"github.com/keep94/cardledger/fin/findb"
	"github.com/keep94/cardledger/fin/ledger"
	"github.com/keep94/cardledger/fin/occurrences"
	"github.com/keep94/cardledger/fin/syncq"
	"github.com/keep94/goconsume"
	"github.com/rs/zerolog"
)

const (
	kDefaultPrefix = "ledgers"
)

var (
	ErrClosed    = errors.New("session: Session closed.")
	ErrNoProfile = errors.New("session: Profile required.")
)

// Collections lists the collections a session persists.
var Collections = []string{
	syncq.Ledger, syncq.Cards, syncq.Budgets, syncq.StartBalance}

// Config configures Open.
type Config struct {
	// The profile whose data the session holds. Required.
	Profile string
	// Remote paths are <Prefix>/<Profile>/<collection>. Defaults to
	// "ledgers".
	Prefix string
	// The local cache. Required.
	Cache findb.Cache
	// The shared remote store. nil means the session stays local.
	Remote findb.Remote
	// Defaults to date_util.SystemClock
	Clock date_util.Clock
	// Defaults to a disabled logger
	Logger *zerolog.Logger
	// Options for the queue of pending writes. May be nil.
	Queue *syncq.Options
	// Generates ids for new records and budgets. Defaults to random UUIDs.
	NewId func() string
}

// Listener receives what a local mutation or a remote snapshot changed.
// changes lists record ids for the ledger collection and is empty for the
// other collections.
type Listener func(collection string, changes fin.Changes)

// Session holds the data of one profile. Session instances are safe to
// use with multiple goroutines.
type Session struct {
	profile string
	prefix  string
	cache   findb.Cache
	remote  findb.Remote
	clock   date_util.Clock
	logger  zerolog.Logger
	newId   func() string
	config  Config
	queue   *syncq.Queue
	ctx     context.Context
	cancel  context.CancelFunc

	mu            sync.Mutex
	store         *ledger.Store
	budgets       []fin.Budget
	startBalance  int64
	unsubscribers map[string]findb.Unsubscriber
	listeners     map[int]Listener
	nextListener  int
	closed        bool
}

// Open loads the profile in config from the cache, normalizing what it
// loads, and subscribes to the remote copy of each collection. A remote
// that cannot be reached is not an error: the session works locally and
// subscribes again on Resubscribe or ConnectivityRegained. ctx bounds the
// lifetime of the subscriptions.
func Open(ctx context.Context, config Config) (*Session, error) {
	if config.Profile == "" {
		return nil, ErrNoProfile
	}
	s := &Session{
		profile:       config.Profile,
		prefix:        config.Prefix,
		cache:         config.Cache,
		remote:        config.Remote,
		clock:         config.Clock,
		logger:        zerolog.Nop(),
		newId:         config.NewId,
		config:        config,
		unsubscribers: make(map[string]findb.Unsubscriber),
		listeners:     make(map[int]Listener),
	}
	if s.prefix == "" {
		s.prefix = kDefaultPrefix
	}
	if s.clock == nil {
		s.clock = date_util.SystemClock{}
	}
	if config.Logger != nil {
		s.logger = *config.Logger
	}
	s.logger = s.logger.With().Str("profile", s.profile).Logger()
	if s.newId == nil {
		s.newId = func() string { return uuid.New().String() }
	}
	normalized, err := s.load()
	if err != nil {
		return nil, err
	}
	var queueOptions syncq.Options
	if config.Queue != nil {
		queueOptions = *config.Queue
	}
	if queueOptions.Logger == nil {
		queueOptions.Logger = &s.logger
	}
	s.queue = syncq.New(syncq.FlusherFunc(s.flush), &queueOptions)
	s.ctx, s.cancel = context.WithCancel(ctx)
	if normalized {
		s.queue.MarkDirty(syncq.Ledger)
	}
	s.Resubscribe()
	return s, nil
}

// load reads every collection from the cache. normalized is true if the
// cached ledger needed normalizing.
func (s *Session) load() (normalized bool, err error) {
	cards, err := findb.DecodeCards(s.cacheGet(syncq.Cards))
	if err != nil {
		return false, fmt.Errorf("decode cached cards: %w", err)
	}
	records, err := findb.DecodeRecords(s.cacheGet(syncq.Ledger))
	if err != nil {
		return false, fmt.Errorf("decode cached ledger: %w", err)
	}
	if s.budgets, err = findb.DecodeBudgets(s.cacheGet(syncq.Budgets)); err != nil {
		return false, fmt.Errorf("decode cached budgets: %w", err)
	}
	if s.startBalance, err = findb.DecodeBalance(s.cacheGet(syncq.StartBalance)); err != nil {
		return false, fmt.Errorf("decode cached start balance: %w", err)
	}
	s.store = ledger.New(cards, s.clock)
	s.store.NewId = s.newId
	if _, normalized = s.store.Replace(records); normalized {
		if err = s.saveLocked(syncq.Ledger); err != nil {
			return
		}
	}
	return
}

func (s *Session) cacheGet(collection string) []byte {
	data, err := s.cache.Get(findb.CacheKey(s.profile, collection), nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("collection", collection).Msg(
			"Cache read failed")
		return nil
	}
	return data
}

// Profile returns the profile of this session.
func (s *Session) Profile() string {
	return s.profile
}

// Path returns the remote path of collection.
func (s *Session) Path(collection string) string {
	return findb.Path(s.prefix, s.profile, collection)
}

// Switch closes this session and opens profile with the same
// configuration.
func (s *Session) Switch(ctx context.Context, profile string) (
	*Session, error) {
	if err := s.Close(); err != nil {
		return nil, err
	}
	config := s.config
	config.Profile = profile
	return Open(ctx, config)
}

// Close unsubscribes from the remote and stops pending retries. Writes
// that have not reached the remote yet stay in the cache.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	unsubscribers := s.unsubscribers
	s.unsubscribers = make(map[string]findb.Unsubscriber)
	s.mu.Unlock()
	s.cancel()
	for _, u := range unsubscribers {
		u.Unsubscribe()
	}
	return s.queue.Close()
}

// OnChange registers listener. The returned function unregisters it.
// Listeners run after the change is applied, without locks held.
func (s *Session) OnChange(listener Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) listenersLocked() []Listener {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	result := make([]Listener, len(ids))
	for i, id := range ids {
		result[i] = s.listeners[id]
	}
	return result
}

func notify(listeners []Listener, collection string, changes fin.Changes) {
	for _, l := range listeners {
		l(collection, changes)
	}
}

// Pending returns true if some local writes have not reached the remote.
func (s *Session) Pending() bool {
	return s.queue.Pending()
}

// Dirty returns the collections waiting to be written to the remote.
func (s *Session) Dirty() []string {
	return s.queue.Dirty()
}

// Flush writes every dirty collection to the remote now.
func (s *Session) Flush(ctx context.Context) error {
	return s.queue.Flush(ctx)
}

// ConnectivityRegained resubscribes where needed and flushes right away.
// Returns false if the call was throttled.
func (s *Session) ConnectivityRegained(ctx context.Context) (bool, error) {
	s.Resubscribe()
	return s.queue.ConnectivityRegained(ctx)
}

// Foregrounded flushes right away. Returns false if the call was
// throttled.
func (s *Session) Foregrounded(ctx context.Context) (bool, error) {
	return s.queue.Foregrounded(ctx)
}

func (s *Session) flush(ctx context.Context, collection string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	data, err := s.encodeLocked(collection)
	remote := s.remote
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if remote == nil {
		return nil
	}
	return remote.Write(ctx, s.Path(collection), data)
}

func (s *Session) encodeLocked(collection string) ([]byte, error) {
	switch collection {
	case syncq.Ledger:
		return findb.EncodeRecords(s.store.Records())
	case syncq.Cards:
		return findb.EncodeCards(s.store.Cards())
	case syncq.Budgets:
		return findb.EncodeBudgets(s.budgets)
	case syncq.StartBalance:
		return findb.EncodeBalance(s.startBalance)
	default:
		return nil, fmt.Errorf("session: unknown collection %q", collection)
	}
}

// saveLocked writes collection to the cache.
func (s *Session) saveLocked(collection string) error {
	data, err := s.encodeLocked(collection)
	if err != nil {
		return err
	}
	if err := s.cache.Set(findb.CacheKey(s.profile, collection), data); err != nil {
		s.logger.Error().Err(err).Str("collection", collection).Msg(
			"Cache write failed")
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// commitLocked saves the changed collections to the cache and marks them
// dirty. Marking happens before the lock is released so that a remote
// snapshot arriving meanwhile is merged rather than replacing the change.
func (s *Session) commitLocked(collections ...string) error {
	var firstErr error
	for _, c := range collections {
		if err := s.saveLocked(c); err != nil && firstErr == nil {
			firstErr = err
		}
		s.queue.MarkDirty(c)
	}
	return firstErr
}

// mutateLedger runs f on the store and commits the ledger when f changed
// something.
func (s *Session) mutateLedger(
	f func(store *ledger.Store) (fin.Changes, error)) (fin.Changes, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fin.Changes{}, ErrClosed
	}
	changes, err := f(s.store)
	if err != nil || changes.IsEmpty() {
		s.mu.Unlock()
		return changes, err
	}
	err = s.commitLocked(syncq.Ledger)
	listeners := s.listenersLocked()
	s.mu.Unlock()
	notify(listeners, syncq.Ledger, changes)
	return changes, err
}

// AddRecord adds a record to the ledger and returns it as stored.
func (s *Session) AddRecord(record fin.Record) (
	added fin.Record, changes fin.Changes, err error) {
	changes, err = s.mutateLedger(func(store *ledger.Store) (
		c fin.Changes, e error) {
		added, c, e = store.AddRecord(record)
		return
	})
	return
}

// UpdateRecord updates the record with given id with updater.
func (s *Session) UpdateRecord(id string, updater fin.RecordUpdater) (
	updated fin.Record, changes fin.Changes, err error) {
	changes, err = s.mutateLedger(func(store *ledger.Store) (
		c fin.Changes, e error) {
		updated, c, e = store.UpdateRecord(id, updater)
		return
	})
	return
}

// RemoveRecord removes the record with given id.
func (s *Session) RemoveRecord(id string) (fin.Changes, error) {
	return s.mutateLedger(func(store *ledger.Store) (fin.Changes, error) {
		return store.RemoveRecord(id)
	})
}

// DetachSingle detaches one occurrence of a master. See
// ledger.Store.DetachSingle.
func (s *Session) DetachSingle(
	id string, date time.Time, options ledger.DetachOptions) (
	child fin.Record, changes fin.Changes, err error) {
	changes, err = s.mutateLedger(func(store *ledger.Store) (
		c fin.Changes, e error) {
		child, c, e = store.DetachSingle(id, date, options)
		return
	})
	return
}

// TruncateFuture ends a master before date. See
// ledger.Store.TruncateFuture.
func (s *Session) TruncateFuture(id string, date time.Time) (
	fin.Changes, error) {
	return s.mutateLedger(func(store *ledger.Store) (fin.Changes, error) {
		return store.TruncateFuture(id, date)
	})
}

// DeleteAll removes a master with everything detached from it.
func (s *Session) DeleteAll(id string) (fin.Changes, error) {
	return s.mutateLedger(func(store *ledger.Store) (fin.Changes, error) {
		return store.DeleteAll(id)
	})
}

// DeleteOccurrence removes one occurrence of a master. See
// ledger.Store.DeleteOccurrence.
func (s *Session) DeleteOccurrence(id string, date time.Time) (
	fin.Changes, error) {
	return s.mutateLedger(func(store *ledger.Store) (fin.Changes, error) {
		return store.DeleteOccurrence(id, date)
	})
}

// Reset removes every record of the ledger.
func (s *Session) Reset() (fin.Changes, error) {
	return s.mutateLedger(func(store *ledger.Store) (fin.Changes, error) {
		return store.Reset(), nil
	})
}

// SetCards replaces the card registry. Posting dates of card records are
// recomputed.
func (s *Session) SetCards(cards fin.Cards) (fin.Changes, error) {
	if err := cards.Validate(); err != nil {
		return fin.Changes{}, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fin.Changes{}, ErrClosed
	}
	changes := s.store.SetCards(append(fin.Cards(nil), cards...))
	collections := []string{syncq.Cards}
	if !changes.IsEmpty() {
		collections = append(collections, syncq.Ledger)
	}
	err := s.commitLocked(collections...)
	listeners := s.listenersLocked()
	s.mu.Unlock()
	notify(listeners, syncq.Cards, fin.Changes{})
	if !changes.IsEmpty() {
		notify(listeners, syncq.Ledger, changes)
	}
	return changes, err
}

// SetBudgets replaces the budgets. Budgets without an id get one.
func (s *Session) SetBudgets(list []fin.Budget) error {
	now := s.clock.Now()
	copied := make([]fin.Budget, len(list))
	for i := range list {
		if err := budgets.Validate(&list[i]); err != nil {
			return err
		}
		copied[i] = list[i]
		if copied[i].Id == "" {
			copied[i].Id = s.newId()
		}
		copied[i].ModifiedAt = now
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.budgets = copied
	err := s.commitLocked(syncq.Budgets)
	listeners := s.listenersLocked()
	s.mu.Unlock()
	notify(listeners, syncq.Budgets, fin.Changes{})
	return err
}

// SetStartBalance sets the opening balance of the ledger.
func (s *Session) SetStartBalance(balance int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.startBalance = balance
	err := s.commitLocked(syncq.StartBalance)
	listeners := s.listenersLocked()
	s.mu.Unlock()
	notify(listeners, syncq.StartBalance, fin.Changes{})
	return err
}

// Records returns the canonical ledger sorted by posting date.
func (s *Session) Records() []fin.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Records()
}

// Get returns the record with given id.
func (s *Session) Get(id string) (fin.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(id)
}

// Cards returns the card registry.
func (s *Session) Cards() fin.Cards {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(fin.Cards(nil), s.store.Cards()...)
}

// Budgets returns the budgets.
func (s *Session) Budgets() []fin.Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fin.Budget(nil), s.budgets...)
}

// StartBalance returns the opening balance.
func (s *Session) StartBalance() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startBalance
}

// Today returns today's date.
func (s *Session) Today() time.Time {
	return date_util.TimeToDate(s.clock.Now())
}

// OccurrencesInRange emits the occurrences of [start, end] to consumer.
// See occurrences.InRange.
func (s *Session) OccurrencesInRange(
	start, end time.Time, consumer goconsume.Consumer) occurrences.Stats {
	masters, concrete, cards := s.snapshot()
	return occurrences.InRange(masters, concrete, cards, start, end, consumer)
}

// TxByDate emits the occurrences posting on date to consumer.
func (s *Session) TxByDate(
	date time.Time, consumer goconsume.Consumer) occurrences.Stats {
	masters, concrete, cards := s.snapshot()
	return occurrences.ByPostDate(masters, concrete, cards, date, consumer)
}

// PostDate returns the posting date of an operation on opDate with method.
func (s *Session) PostDate(opDate time.Time, method string) time.Time {
	cards := s.Cards()
	if name, ok := cards.Resolve(method); ok {
		method = name
	}
	return fin.PostDate(date_util.TimeToDate(opDate), method, cards)
}

// OccursOn returns true if the master with given id occurs on date.
func (s *Session) OccursOn(id string, date time.Time) (bool, error) {
	r, err := s.Get(id)
	if err != nil {
		return false, err
	}
	return fin.OccursOn(&r, date), nil
}

// Reservations returns the reservations of the active budgets as of
// today. See budgets.Reservations.
func (s *Session) Reservations() []fin.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return budgets.Reservations(
		s.budgets, s.store.Records(), s.store.Cards(), s.store.Today())
}

// Balance returns the opening balance plus every occurrence posting on or
// before asOf. The planned part is the contribution of planned
// occurrences. When withReservations is true, reservations posting on or
// before asOf count as planned.
func (s *Session) Balance(asOf time.Time, withReservations bool) (
	total, planned int64) {
	asOf = date_util.TimeToDate(asOf)
	s.mu.Lock()
	records := s.store.Records()
	cards := s.store.Cards()
	startBalance := s.startBalance
	var reservations []fin.Record
	if withReservations {
		reservations = budgets.Reservations(
			s.budgets, records, cards, s.store.Today())
	}
	s.mu.Unlock()
	totaler := &aggregators.BalanceTotaler{AsOf: asOf}
	if start, ok := earliest(records); ok {
		masters, concrete := occurrences.Split(records)
		occurrences.InRange(
			masters,
			concrete,
			cards,
			start,
			asOf,
			consumers.FromOccurrenceAggregator(totaler))
	}
	consumers.Records(reservations, consumers.FromRecordAggregator(totaler))
	return startBalance + totaler.Total, totaler.PlannedTotal
}

func earliest(records []fin.Record) (time.Time, bool) {
	var result time.Time
	for i := range records {
		if result.IsZero() || records[i].OpDate.Before(result) {
			result = records[i].OpDate
		}
	}
	return result, !result.IsZero()
}

func (s *Session) snapshot() (masters, concrete []fin.Record, cards fin.Cards) {
	s.mu.Lock()
	defer s.mu.Unlock()
	masters, concrete = occurrences.Split(s.store.Records())
	cards = append(fin.Cards(nil), s.store.Cards()...)
	return
}
