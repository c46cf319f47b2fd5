package session

import (
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/findb"
	"github.com/keep94/cardledger/fin/merge"
	"github.com/keep94/cardledger/fin/syncq"
)

// Resubscribe subscribes to the remote copy of each collection that has no
// subscription yet. Failures are logged; the collection stays local until
// the next call.
func (s *Session) Resubscribe() {
	if s.remote == nil {
		return
	}
	for _, collection := range Collections {
		s.mu.Lock()
		_, subscribed := s.unsubscribers[collection]
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		if subscribed {
			continue
		}
		collection := collection
		// The remote may call back before Subscribe returns.
		unsubscriber, err := s.remote.Subscribe(
			s.ctx,
			s.Path(collection),
			func(value []byte, exists bool) {
				s.onSnapshot(collection, value, exists)
			})
		if err != nil {
			s.logger.Warn().Err(err).Str("collection", collection).Msg(
				"Subscribe failed")
			continue
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			unsubscriber.Unsubscribe()
			return
		}
		s.unsubscribers[collection] = unsubscriber
		s.mu.Unlock()
	}
}

// Subscribed returns true if collection follows its remote copy.
func (s *Session) Subscribed(collection string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.unsubscribers[collection]
	return ok
}

// onSnapshot merges a remote snapshot of collection. A missing remote copy
// is seeded from the local one.
func (s *Session) onSnapshot(collection string, value []byte, exists bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !exists {
		if s.hasLocalLocked(collection) {
			s.queue.MarkDirty(collection)
		}
		s.mu.Unlock()
		return
	}
	var changes fin.Changes
	var changed bool
	var err error
	switch collection {
	case syncq.Ledger:
		changes, changed, err = s.mergeLedgerLocked(value)
	case syncq.Cards:
		changes, changed, err = s.mergeCardsLocked(value)
	case syncq.Budgets:
		changed, err = s.mergeBudgetsLocked(value)
	case syncq.StartBalance:
		changed, err = s.mergeBalanceLocked(value)
	}
	if err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("collection", collection).Msg(
			"Bad remote snapshot")
		return
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()
	if changed && collection != syncq.Ledger {
		notify(listeners, collection, fin.Changes{})
	}
	if !changes.IsEmpty() {
		notify(listeners, syncq.Ledger, changes)
	}
}

func (s *Session) hasLocalLocked(collection string) bool {
	switch collection {
	case syncq.Ledger:
		return s.store.Len() > 0
	case syncq.Cards:
		return len(s.store.Cards()) > 0
	case syncq.Budgets:
		return len(s.budgets) > 0
	case syncq.StartBalance:
		return s.startBalance != 0
	}
	return false
}

// mergeLedgerLocked folds a remote ledger into the store. The merged
// ledger is normalized; if normalizing changed it or local records won,
// the ledger is written back.
func (s *Session) mergeLedgerLocked(value []byte) (
	changes fin.Changes, changed bool, err error) {
	remote, err := findb.DecodeRecords(value)
	if err != nil {
		return
	}
	pending := s.queue.IsDirty(syncq.Ledger)
	result := merge.Ledger(s.store.Records(), remote, pending)
	changes, normalized := s.store.Replace(result.Records)
	changed = !changes.IsEmpty()
	s.logger.Debug().
		Bool("pending", pending).
		Bool("replaced", result.Replaced).
		Int("added", len(changes.Added)).
		Int("updated", len(changes.Updated)).
		Int("removed", len(changes.Removed)).
		Msg("Merged remote ledger")
	if changed || normalized {
		if err = s.saveLocked(syncq.Ledger); err != nil {
			return
		}
	}
	if normalized || len(result.LocalWins) > 0 {
		s.queue.MarkDirty(syncq.Ledger)
	}
	return
}

func (s *Session) mergeCardsLocked(value []byte) (
	changes fin.Changes, changed bool, err error) {
	remote, err := findb.DecodeCards(value)
	if err != nil {
		return
	}
	merged, replaced := merge.Collection(
		s.store.Cards(), remote, s.queue.IsDirty(syncq.Cards))
	if !replaced || cardsEqual(merged, s.store.Cards()) {
		return
	}
	changed = true
	changes = s.store.SetCards(merged)
	if err = s.saveLocked(syncq.Cards); err != nil {
		return
	}
	if !changes.IsEmpty() {
		if err = s.saveLocked(syncq.Ledger); err != nil {
			return
		}
		// Posting dates moved; the remote ledger holds the old ones.
		s.queue.MarkDirty(syncq.Ledger)
	}
	return
}

func (s *Session) mergeBudgetsLocked(value []byte) (changed bool, err error) {
	remote, err := findb.DecodeBudgets(value)
	if err != nil {
		return
	}
	merged, replaced := merge.Collection(
		s.budgets, remote, s.queue.IsDirty(syncq.Budgets))
	if !replaced || budgetsEqual(merged, s.budgets) {
		return
	}
	s.budgets = merged
	return true, s.saveLocked(syncq.Budgets)
}

func (s *Session) mergeBalanceLocked(value []byte) (changed bool, err error) {
	remote, err := findb.DecodeBalance(value)
	if err != nil {
		return
	}
	merged, replaced := merge.Collection(
		s.startBalance, remote, s.queue.IsDirty(syncq.StartBalance))
	if !replaced || merged == s.startBalance {
		return
	}
	s.startBalance = merged
	return true, s.saveLocked(syncq.StartBalance)
}

func cardsEqual(a, b fin.Cards) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func budgetsEqual(a, b []fin.Budget) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Id != y.Id || x.Name != y.Name || x.Amount != y.Amount ||
			x.Recurrence != y.Recurrence || x.Method != y.Method ||
			x.Active != y.Active || !x.StartDate.Equal(y.StartDate) ||
			!x.EndDate.Equal(y.EndDate) || !x.ModifiedAt.Equal(y.ModifiedAt) {
			return false
		}
	}
	return true
}
