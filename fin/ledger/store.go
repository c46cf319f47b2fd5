// Package ledger contains the canonical, id keyed collection of records
// along with the operations that edit single occurrences of recurring
// records.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/keep94/appcommon/date_util"
	"github.com/keep94/cardledger/fin"
)

var (
	ErrNoSuchId     = errors.New("ledger: No such id.")
	ErrDuplicateId  = errors.New("ledger: Duplicate id.")
	ErrNoOccurrence = errors.New("ledger: Master has no occurrence on date.")
)

// Store holds records keyed by id. ParentId is a plain lookup key into the
// same collection. Store normalizes every record it ingests. Store is not
// safe to use with multiple goroutines.
type Store struct {
	byId  map[string]*fin.Record
	cards fin.Cards
	clock date_util.Clock
	// NewId generates ids for added records without one. Defaults to
	// random UUIDs.
	NewId func() string
}

// New returns an empty store. cards is used to compute posting dates and
// to resolve payment methods; clock supplies today's date.
func New(cards fin.Cards, clock date_util.Clock) *Store {
	return &Store{
		byId:  make(map[string]*fin.Record),
		cards: cards,
		clock: clock,
		NewId: func() string { return uuid.New().String() },
	}
}

// Today returns today's date according to the store's clock.
func (s *Store) Today() time.Time {
	return date_util.TimeToDate(s.clock.Now())
}

// Cards returns the cards this store uses.
func (s *Store) Cards() fin.Cards {
	return s.cards
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.byId)
}

// Records returns a deep copy of all records sorted by posting date then
// creation instant.
func (s *Store) Records() []fin.Record {
	result := make([]fin.Record, 0, len(s.byId))
	for _, r := range s.byId {
		result = append(result, r.Copy())
	}
	fin.ByPostDate(result)
	return result
}

// Get returns a copy of the record with given id.
func (s *Store) Get(id string) (fin.Record, error) {
	r, ok := s.byId[id]
	if !ok {
		return fin.Record{}, ErrNoSuchId
	}
	return r.Copy(), nil
}

// Children returns copies of the records detached from the master with
// given id sorted by posting date.
func (s *Store) Children(masterId string) []fin.Record {
	var result []fin.Record
	for _, r := range s.byId {
		if r.ParentId == masterId && !r.IsMaster() {
			result = append(result, r.Copy())
		}
	}
	fin.ByPostDate(result)
	return result
}

// Replace replaces the contents of this store with records. Records are
// normalized; normalized is true if any of them needed it. When two
// records share an id, the later one wins.
func (s *Store) Replace(records []fin.Record) (
	changes fin.Changes, normalized bool) {
	before := s.Records()
	byId := make(map[string]*fin.Record, len(records))
	today := s.Today()
	for i := range records {
		r := records[i].Copy()
		if r.Id == "" {
			r.Id = s.NewId()
			normalized = true
		}
		if fin.Normalize(&r, s.cards, today) {
			normalized = true
		}
		byId[r.Id] = &r
	}
	s.byId = byId
	changes = fin.Diff(before, s.Records())
	return
}

// SetCards replaces the cards of this store and re-normalizes every record
// against them.
func (s *Store) SetCards(cards fin.Cards) fin.Changes {
	s.cards = cards
	records := s.Records()
	for i := range records {
		if records[i].Method != fin.CashMethod {
			records[i].PostDate = time.Time{}
		}
	}
	changes, _ := s.Replace(records)
	return changes
}

// Reset removes every record.
func (s *Store) Reset() fin.Changes {
	changes, _ := s.Replace(nil)
	return changes
}

// AddRecord adds a new record. If record has no id, AddRecord assigns one.
// A master with an unrecognized pattern is rejected with
// fin.ErrBadRecurrence.
// A zero Ts becomes now. The stored record is returned.
func (s *Store) AddRecord(record fin.Record) (
	added fin.Record, changes fin.Changes, err error) {
	r := record.Copy()
	if err = checkRecurrence(&r); err != nil {
		return
	}
	if r.Id == "" {
		r.Id = s.NewId()
	}
	if _, ok := s.byId[r.Id]; ok {
		err = ErrDuplicateId
		return
	}
	now := s.clock.Now()
	if r.Ts.IsZero() {
		r.Ts = now
	}
	r.ModifiedAt = now
	fin.Normalize(&r, s.cards, s.Today())
	s.byId[r.Id] = &r
	changes.Added = []string{r.Id}
	return r.Copy(), changes, nil
}

// UpdateRecord updates the record with given id in place with updater.
// If updater returns false, nothing changes. Changing the operation date
// or method recomputes the posting date.
func (s *Store) UpdateRecord(id string, updater fin.RecordUpdater) (
	updated fin.Record, changes fin.Changes, err error) {
	existing, ok := s.byId[id]
	if !ok {
		err = ErrNoSuchId
		return
	}
	r := existing.Copy()
	if !updater(&r) {
		return existing.Copy(), changes, nil
	}
	r.Id = id
	if err = checkRecurrence(&r); err != nil {
		return
	}
	if !r.OpDate.Equal(existing.OpDate) || r.Method != existing.Method {
		r.PostDate = time.Time{}
	}
	fin.Normalize(&r, s.cards, s.Today())
	if r.Equal(existing) {
		return existing.Copy(), changes, nil
	}
	r.ModifiedAt = s.clock.Now()
	s.byId[id] = &r
	changes.Updated = []string{id}
	return r.Copy(), changes, nil
}

// RemoveRecord removes the record with given id. Records detached from it
// are left alone; see DeleteAll.
func (s *Store) RemoveRecord(id string) (fin.Changes, error) {
	if _, ok := s.byId[id]; !ok {
		return fin.Changes{}, ErrNoSuchId
	}
	delete(s.byId, id)
	return fin.Changes{Removed: []string{id}}, nil
}

func checkRecurrence(r *fin.Record) error {
	if !r.IsMaster() {
		return nil
	}
	_, err := fin.ParseRecurrence(r.Recurrence)
	return err
}

func (s *Store) touch(r *fin.Record) {
	r.ModifiedAt = s.clock.Now()
}
