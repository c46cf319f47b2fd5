// Package syncq tracks collections with local writes that have not reached
// the remote store yet and retries writing them.
package syncq

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Names of the collections a session persists.
const (
	Ledger       = "ledger"
	Cards        = "cards"
	Budgets      = "budgets"
	StartBalance = "startBalance"
)

const (
	kInitialBackoff  = time.Second
	kMaxBackoff      = 5 * time.Minute
	kTriggerInterval = 5 * time.Second
)

var (
	ErrClosed = errors.New("syncq: Queue closed.")
)

// Flusher writes one collection to the remote store.
type Flusher interface {
	Flush(ctx context.Context, collection string) error
}

// FlusherFunc adapts a function to a Flusher.
type FlusherFunc func(ctx context.Context, collection string) error

func (f FlusherFunc) Flush(ctx context.Context, collection string) error {
	return f(ctx, collection)
}

// Timer is a scheduled callback.
type Timer interface {
	// Stop cancels the callback. Returns false if it already ran or was
	// already stopped.
	Stop() bool
}

// Scheduler runs callbacks later.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules callbacks with time.AfterFunc.
type SystemScheduler struct {
}

func (s SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options contains optional settings for New.
type Options struct {
	// Defaults to SystemScheduler
	Scheduler Scheduler
	// Defaults to a disabled logger
	Logger *zerolog.Logger
	// Minimum time between flushes triggered by ConnectivityRegained and
	// Foregrounded. Defaults to 5s.
	TriggerInterval time.Duration
	// Delay before the first retry. Doubles after each failure up to
	// MaxBackoff. Defaults to 1s.
	InitialBackoff time.Duration
	// Defaults to 5m.
	MaxBackoff time.Duration
}

// Queue is the set of dirty collections. Queue instances are safe to use
// with multiple goroutines.
type Queue struct {
	flusher        Flusher
	scheduler      Scheduler
	logger         zerolog.Logger
	limiter        *rate.Limiter
	initialBackoff time.Duration
	maxBackoff     time.Duration

	// Serializes flushes
	flushMu sync.Mutex

	mu         sync.Mutex
	dirty      map[string]bool
	// Collections being written by the current flush
	inflight   map[string]bool
	backoff    time.Duration
	timer      Timer
	generation int
	closed     bool
}

// New creates a new Queue persisting collections through flusher.
// options may be nil.
func New(flusher Flusher, options *Options) *Queue {
	if options == nil {
		options = &Options{}
	}
	q := &Queue{
		flusher:        flusher,
		scheduler:      options.Scheduler,
		logger:         zerolog.Nop(),
		initialBackoff: options.InitialBackoff,
		maxBackoff:     options.MaxBackoff,
		dirty:          make(map[string]bool),
		inflight:       make(map[string]bool),
	}
	if q.scheduler == nil {
		q.scheduler = SystemScheduler{}
	}
	if options.Logger != nil {
		q.logger = *options.Logger
	}
	if q.initialBackoff <= 0 {
		q.initialBackoff = kInitialBackoff
	}
	if q.maxBackoff <= 0 {
		q.maxBackoff = kMaxBackoff
	}
	interval := options.TriggerInterval
	if interval <= 0 {
		interval = kTriggerInterval
	}
	q.limiter = rate.NewLimiter(rate.Every(interval), 1)
	q.backoff = q.initialBackoff
	return q
}

// MarkDirty adds collection to the dirty set and schedules a flush unless
// one is already scheduled.
func (q *Queue) MarkDirty(collection string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.dirty[collection] = true
	if q.timer == nil {
		q.scheduleLocked(0)
	}
}

// IsDirty returns true if collection has writes not yet on the remote,
// including writes a flush is still sending.
func (q *Queue) IsDirty(collection string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dirty[collection] || q.inflight[collection]
}

// Dirty returns the dirty collections sorted by name.
func (q *Queue) Dirty() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dirtyLocked()
}

// Pending returns true if any collection is dirty.
func (q *Queue) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dirty) > 0 || len(q.inflight) > 0
}

// Backoff returns the delay before the next retry should a flush fail.
func (q *Queue) Backoff() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.backoff
}

// Flush writes every dirty collection. Collections that fail to write stay
// dirty along with any marked dirty meanwhile, and a retry is scheduled
// with exponential backoff. Flush returns the first failure.
func (q *Queue) Flush(ctx context.Context) error {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	generation := q.generation
	collections := q.dirtyLocked()
	q.inflight = q.dirty
	q.dirty = make(map[string]bool)
	q.mu.Unlock()

	var failed []string
	var firstErr error
	for _, collection := range collections {
		if err := q.flusher.Flush(ctx, collection); err != nil {
			q.logger.Warn().Err(err).Str("collection", collection).Msg(
				"Flush failed")
			failed = append(failed, collection)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		q.logger.Debug().Str("collection", collection).Msg("Flushed")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	// A Reset during the flush means these collections belong to a
	// previous profile.
	if q.closed || generation != q.generation {
		return firstErr
	}
	q.inflight = make(map[string]bool)
	for _, collection := range failed {
		q.dirty[collection] = true
	}
	if len(failed) > 0 {
		delay := q.backoff
		q.backoff *= 2
		if q.backoff > q.maxBackoff {
			q.backoff = q.maxBackoff
		}
		q.stopTimerLocked()
		q.scheduleLocked(delay)
		return firstErr
	}
	q.backoff = q.initialBackoff
	if len(q.dirty) > 0 && q.timer == nil {
		q.scheduleLocked(0)
	}
	return nil
}

// ConnectivityRegained flushes right away, ignoring any pending backoff.
// Calls closer together than the trigger interval are dropped. Returns
// false if the call was dropped.
func (q *Queue) ConnectivityRegained(ctx context.Context) (bool, error) {
	return q.trigger(ctx, "connectivity")
}

// Foregrounded works like ConnectivityRegained.
func (q *Queue) Foregrounded(ctx context.Context) (bool, error) {
	return q.trigger(ctx, "foreground")
}

func (q *Queue) trigger(ctx context.Context, reason string) (bool, error) {
	if !q.limiter.Allow() {
		q.logger.Debug().Str("reason", reason).Msg("Flush trigger throttled")
		return false, nil
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, ErrClosed
	}
	q.stopTimerLocked()
	q.backoff = q.initialBackoff
	empty := len(q.dirty) == 0
	q.mu.Unlock()
	if empty {
		return true, nil
	}
	return true, q.Flush(ctx)
}

// Reset forgets the dirty set and any scheduled retry. Callbacks of timers
// scheduled before Reset do nothing.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetLocked()
}

// Close resets this queue for good. Later calls to Flush return ErrClosed
// and MarkDirty does nothing.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetLocked()
	q.closed = true
	return nil
}

func (q *Queue) resetLocked() {
	q.generation++
	q.stopTimerLocked()
	q.dirty = make(map[string]bool)
	q.inflight = make(map[string]bool)
	q.backoff = q.initialBackoff
}

func (q *Queue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

func (q *Queue) scheduleLocked(delay time.Duration) {
	generation := q.generation
	var timer Timer
	timer = q.scheduler.AfterFunc(delay, func() {
		q.mu.Lock()
		if q.closed || generation != q.generation || q.timer != timer {
			q.mu.Unlock()
			return
		}
		q.timer = nil
		q.mu.Unlock()
		q.Flush(context.Background())
	})
	q.timer = timer
}

func (q *Queue) dirtyLocked() []string {
	result := make([]string, 0, len(q.dirty))
	for collection := range q.dirty {
		result = append(result, collection)
	}
	sort.Strings(result)
	return result
}
