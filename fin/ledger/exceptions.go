package ledger

import (
	"time"

	"github.com/keep94/appcommon/date_util"
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/occurrences"
)

// DetachOptions controls DetachSingle.
type DetachOptions struct {
	// If true, the detached record happens today instead of on its
	// occurrence date.
	MoveToToday bool
	// If non-nil, edits the detached record before it is stored. Returning
	// false cancels the detach.
	Update fin.RecordUpdater
}

// target is what a (id, date) pair resolves to. Exactly one of master and
// plain is non-nil.
type target struct {
	master *fin.Record
	// The detached record the id named, if any.
	child *fin.Record
	// A record with no master to annotate.
	plain *fin.Record
	date  time.Time
}

// resolve accepts the id of a master, of a record detached from a master
// or of a virtual occurrence. A virtual id supplies the date when date is
// zero; a detached record supplies its operation date.
func (s *Store) resolve(id string, date time.Time) (t target, err error) {
	t.date = date_util.TimeToDate(date)
	r, ok := s.byId[id]
	if !ok {
		masterId, vdate, isVirtual := occurrences.ParseVirtualId(id)
		if !isVirtual {
			err = ErrNoSuchId
			return
		}
		if r, ok = s.byId[masterId]; !ok || !r.IsMaster() {
			err = ErrNoSuchId
			return
		}
		if t.date.IsZero() {
			t.date = vdate
		}
		t.master = r
		return
	}
	if r.IsMaster() {
		t.master = r
		return
	}
	if r.IsDetached() {
		if parent, ok := s.byId[r.ParentId]; ok && parent.IsMaster() {
			t.master = parent
			t.child = r
			if t.date.IsZero() {
				t.date = r.OpDate
			}
			return
		}
	}
	t.plain = r
	return
}

func (s *Store) childOn(masterId string, date time.Time) *fin.Record {
	for _, r := range s.byId {
		if r.ParentId == masterId && !r.IsMaster() && r.OpDate.Equal(date) {
			return r
		}
	}
	return nil
}

// DetachSingle detaches the occurrence on date of the master that id
// resolves to: date joins the master's exceptions and a new record copying
// the master with ParentId set to the master's id is stored. id may be the
// id of a master, of a virtual occurrence or of a record already detached.
// Detaching an occurrence that is already detached changes nothing and
// returns the existing detached record when it still exists. If id names a
// record with no master, that record is removed instead.
func (s *Store) DetachSingle(id string, date time.Time, options DetachOptions) (
	child fin.Record, changes fin.Changes, err error) {
	t, err := s.resolve(id, date)
	if err != nil {
		return
	}
	if t.plain != nil {
		changes, err = s.RemoveRecord(t.plain.Id)
		return
	}
	if t.child != nil {
		return t.child.Copy(), changes, nil
	}
	master := t.master
	if t.date.IsZero() {
		err = ErrNoOccurrence
		return
	}
	if master.Exceptions.Contains(t.date) {
		if existing := s.childOn(master.Id, t.date); existing != nil {
			child = existing.Copy()
		}
		return
	}
	if !fin.OccursOn(master, t.date) {
		err = ErrNoOccurrence
		return
	}
	childId := s.NewId()
	c := master.Copy()
	c.Id = childId
	c.ParentId = master.Id
	c.Recurrence = ""
	c.Exceptions = nil
	c.RecurrenceEnd = time.Time{}
	c.OpDate = t.date
	if options.MoveToToday {
		c.OpDate = s.Today()
	}
	c.PostDate = time.Time{}
	c.Status = fin.PlanUnset
	now := s.clock.Now()
	c.Ts = now
	c.ModifiedAt = now
	if options.Update != nil && !options.Update(&c) {
		return
	}
	c.Id = childId
	c.ParentId = master.Id
	c.Recurrence = ""
	c.Exceptions = nil
	fin.Normalize(&c, s.cards, s.Today())
	if _, ok := s.byId[c.Id]; ok {
		err = ErrDuplicateId
		return
	}
	if master.Exceptions == nil {
		master.Exceptions = make(fin.DateSet)
	}
	master.Exceptions[t.date] = true
	s.touch(master)
	s.byId[c.Id] = &c
	changes.Updated = []string{master.Id}
	changes.Added = []string{c.Id}
	return c.Copy(), changes, nil
}

// TruncateFuture ends the master that id resolves to just before date:
// date becomes the exclusive RecurrenceEnd of the master. Exceptions and
// detached records on or after date are removed; earlier detached records
// are left alone. TruncateFuture only tightens: if the master already ends
// on or before date, nothing changes. If id names a record with no master,
// that record is removed instead.
func (s *Store) TruncateFuture(id string, date time.Time) (
	changes fin.Changes, err error) {
	t, err := s.resolve(id, date)
	if err != nil {
		return
	}
	if t.plain != nil {
		return s.RemoveRecord(t.plain.Id)
	}
	master := t.master
	if t.date.IsZero() {
		err = ErrNoOccurrence
		return
	}
	if !master.RecurrenceEnd.IsZero() && !t.date.Before(master.RecurrenceEnd) {
		return
	}
	master.RecurrenceEnd = t.date
	fin.PruneExceptions(master)
	s.touch(master)
	changes.Updated = []string{master.Id}
	for _, r := range s.Children(master.Id) {
		if !r.OpDate.Before(t.date) {
			delete(s.byId, r.Id)
			changes.Removed = append(changes.Removed, r.Id)
		}
	}
	return
}

// DeleteAll removes the master that id resolves to along with every record
// detached from it. If id names a record with no master, only that record
// is removed.
func (s *Store) DeleteAll(id string) (changes fin.Changes, err error) {
	t, err := s.resolve(id, time.Time{})
	if err != nil {
		return
	}
	if t.plain != nil {
		return s.RemoveRecord(t.plain.Id)
	}
	masterId := t.master.Id
	children := s.Children(masterId)
	delete(s.byId, masterId)
	changes.Removed = []string{masterId}
	for _, r := range children {
		delete(s.byId, r.Id)
		changes.Removed = append(changes.Removed, r.Id)
	}
	return
}

// DeleteOccurrence deletes one occurrence of the master that id resolves
// to. date joins the master's exceptions and any record detached on date
// is removed. If id names a detached record, that record is removed and
// date defaults to its operation date. If id names a record with no
// master, that record is removed.
func (s *Store) DeleteOccurrence(id string, date time.Time) (
	changes fin.Changes, err error) {
	t, err := s.resolve(id, date)
	if err != nil {
		return
	}
	if t.plain != nil {
		return s.RemoveRecord(t.plain.Id)
	}
	master := t.master
	if t.child != nil {
		delete(s.byId, t.child.Id)
		changes.Removed = []string{t.child.Id}
		return
	}
	if t.date.IsZero() {
		err = ErrNoOccurrence
		return
	}
	if !master.Exceptions.Contains(t.date) {
		if !fin.OccursOn(master, t.date) {
			err = ErrNoOccurrence
			return
		}
		if master.Exceptions == nil {
			master.Exceptions = make(fin.DateSet)
		}
		master.Exceptions[t.date] = true
		s.touch(master)
		changes.Updated = []string{master.Id}
	}
	if existing := s.childOn(master.Id, t.date); existing != nil {
		delete(s.byId, existing.Id)
		changes.Removed = []string{existing.Id}
	}
	return
}
