package ledger_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/keep94/appcommon/date_util"
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/ledger"
	"github.com/keep94/cardledger/fin/occurrences"
	"github.com/keep94/goconsume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	kNow   = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	kCards = fin.Cards{{Name: "Visa", CloseDay: 10, DueDay: 20}}
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func newStore() *ledger.Store {
	store := ledger.New(kCards, &fakeClock{now: kNow})
	next := 0
	store.NewId = func() string {
		next++
		return fmt.Sprintf("id%d", next)
	}
	return store
}

func addRent(t *testing.T, store *ledger.Store) fin.Record {
	rent, _, err := store.AddRecord(fin.Record{
		Id:         "rent",
		Desc:       "Rent",
		Value:      -150000,
		OpDate:     date_util.YMD(2024, 1, 5),
		Method:     "Visa",
		Recurrence: "monthly",
	})
	require.NoError(t, err)
	return rent
}

func TestAddRecord(t *testing.T) {
	assert := assert.New(t)
	store := newStore()
	added, changes, err := store.AddRecord(fin.Record{Desc: "Coffee", Value: -350})
	assert.NoError(err)
	assert.Equal("id1", added.Id)
	assert.Equal([]string{"id1"}, changes.Added)
	assert.Equal(date_util.YMD(2024, 3, 15), added.OpDate)
	assert.Equal(date_util.YMD(2024, 3, 15), added.PostDate)
	assert.Equal(fin.CashMethod, added.Method)
	assert.Equal(fin.Executed, added.Status)
	assert.Equal(kNow, added.Ts)
	assert.Equal(kNow, added.ModifiedAt)

	_, _, err = store.AddRecord(fin.Record{Id: "id1"})
	assert.Equal(ledger.ErrDuplicateId, err)
	assert.Equal(1, store.Len())
}

func TestRecordsSortedCopy(t *testing.T) {
	assert := assert.New(t)
	store := newStore()
	addRent(t, store)
	store.AddRecord(fin.Record{Id: "a", OpDate: date_util.YMD(2024, 1, 3)})
	store.AddRecord(fin.Record{
		Id: "b", OpDate: date_util.YMD(2024, 1, 12), Method: "visa"})
	records := store.Records()
	require.Len(t, records, 3)
	assert.Equal("a", records[0].Id)
	assert.Equal("rent", records[1].Id)
	assert.Equal("b", records[2].Id)
	assert.Equal("Visa", records[2].Method)
	assert.Equal(date_util.YMD(2024, 2, 20), records[2].PostDate)

	records[1].Exceptions = fin.DateSet{date_util.YMD(2024, 2, 5): true}
	records[1].Desc = "changed"
	rent, err := store.Get("rent")
	assert.NoError(err)
	assert.Equal("Rent", rent.Desc)
	assert.Empty(rent.Exceptions)
}

func TestUpdateRecord(t *testing.T) {
	assert := assert.New(t)
	store := newStore()
	store.AddRecord(fin.Record{Id: "a", OpDate: date_util.YMD(2024, 3, 2)})
	updated, changes, err := store.UpdateRecord("a", func(r *fin.Record) bool {
		r.Method = "Visa"
		r.Id = "ignored"
		return true
	})
	assert.NoError(err)
	assert.Equal([]string{"a"}, changes.Updated)
	assert.Equal("a", updated.Id)
	assert.Equal(date_util.YMD(2024, 3, 20), updated.PostDate)

	_, changes, err = store.UpdateRecord("a", func(r *fin.Record) bool {
		r.Desc = "not saved"
		return false
	})
	assert.NoError(err)
	assert.True(changes.IsEmpty())

	_, changes, err = store.UpdateRecord("a", func(r *fin.Record) bool {
		return true
	})
	assert.NoError(err)
	assert.True(changes.IsEmpty())

	_, _, err = store.UpdateRecord("missing", func(r *fin.Record) bool {
		return true
	})
	assert.Equal(ledger.ErrNoSuchId, err)
}

func TestBadRecurrenceRejected(t *testing.T) {
	assert := assert.New(t)
	store := newStore()
	_, _, err := store.AddRecord(fin.Record{Desc: "Gym", Recurrence: "daily"})
	assert.Equal(fin.ErrBadRecurrence, err)
	assert.Equal(0, store.Len())

	addRent(t, store)
	_, _, err = store.UpdateRecord("rent", func(r *fin.Record) bool {
		r.Recurrence = "fortnightly"
		return true
	})
	assert.Equal(fin.ErrBadRecurrence, err)
	rent, err := store.Get("rent")
	require.NoError(t, err)
	assert.Equal("monthly", rent.Recurrence)
}

func TestRemoveRecord(t *testing.T) {
	store := newStore()
	store.AddRecord(fin.Record{Id: "a"})
	changes, err := store.RemoveRecord("a")
	assert.NoError(t, err)
	assert.Equal(t, []string{"a"}, changes.Removed)
	_, err = store.RemoveRecord("a")
	assert.Equal(t, ledger.ErrNoSuchId, err)
}

func TestReplace(t *testing.T) {
	assert := assert.New(t)
	store := newStore()
	store.AddRecord(fin.Record{Id: "a", Desc: "old"})
	store.AddRecord(fin.Record{Id: "b"})
	b, _ := store.Get("b")
	changes, normalized := store.Replace([]fin.Record{
		b,
		{Id: "c", Desc: "new", OpDate: date_util.YMD(2024, 5, 1)},
	})
	assert.True(normalized)
	assert.Equal([]string{"c"}, changes.Added)
	assert.Equal([]string{"a"}, changes.Removed)
	assert.Empty(changes.Updated)
	c, err := store.Get("c")
	assert.NoError(err)
	assert.Equal(fin.Planned, c.Status)

	_, normalized = store.Replace(store.Records())
	assert.False(normalized)
	assert.True(store.Reset().Removed != nil)
	assert.Equal(0, store.Len())
}

func TestSetCards(t *testing.T) {
	store := newStore()
	store.AddRecord(fin.Record{
		Id: "a", OpDate: date_util.YMD(2024, 3, 2), Method: "Visa"})
	changes := store.SetCards(fin.Cards{{Name: "Visa", CloseDay: 1, DueDay: 8}})
	assert.Equal(t, []string{"a"}, changes.Updated)
	a, _ := store.Get("a")
	assert.Equal(t, date_util.YMD(2024, 4, 8), a.PostDate)
}

func TestDetachSingleRoundTrip(t *testing.T) {
	assert := assert.New(t)
	store := newStore()
	addRent(t, store)
	date := date_util.YMD(2024, 4, 5)
	child, changes, err := store.DetachSingle("rent", date, ledger.DetachOptions{})
	require.NoError(t, err)
	assert.Equal([]string{"id1"}, changes.Added)
	assert.Equal([]string{"rent"}, changes.Updated)
	assert.Equal("rent", child.ParentId)
	assert.Equal(date, child.OpDate)
	assert.Equal(date_util.YMD(2024, 4, 20), child.PostDate)
	assert.Equal("", child.Recurrence)
	assert.Equal(fin.Planned, child.Status)
	assert.Equal("Rent", child.Desc)

	verifyOneConcreteOn(t, store, date)

	again, changes, err := store.DetachSingle("rent", date, ledger.DetachOptions{})
	assert.NoError(err)
	assert.True(changes.IsEmpty())
	assert.Equal(child.Id, again.Id)
	again, changes, err = store.DetachSingle(
		occurrences.VirtualId("rent", date), time.Time{}, ledger.DetachOptions{})
	assert.NoError(err)
	assert.True(changes.IsEmpty())
	assert.Equal(child.Id, again.Id)
	verifyOneConcreteOn(t, store, date)
}

func verifyOneConcreteOn(t *testing.T, store *ledger.Store, date time.Time) {
	t.Helper()
	masters, concrete := occurrences.Split(store.Records())
	var result []occurrences.Occurrence
	occurrences.InRange(
		masters, concrete, store.Cards(), date, date, goconsume.AppendTo(&result))
	require.Len(t, result, 1)
	assert.False(t, result[0].Virtual)
	assert.Equal(t, "rent", result[0].ParentId)
	assert.Equal(t, date, result[0].OpDate)
}

func TestDetachSingleVirtualIdMoveToToday(t *testing.T) {
	assert := assert.New(t)
	store := newStore()
	addRent(t, store)
	child, _, err := store.DetachSingle(
		occurrences.VirtualId("rent", date_util.YMD(2024, 3, 5)),
		time.Time{},
		ledger.DetachOptions{
			MoveToToday: true,
			Update: func(r *fin.Record) bool {
				r.Value = -151000
				return true
			},
		})
	assert.NoError(err)
	assert.Equal(date_util.YMD(2024, 3, 15), child.OpDate)
	assert.Equal(date_util.YMD(2024, 4, 20), child.PostDate)
	assert.Equal(fin.Executed, child.Status)
	assert.Equal(int64(-151000), child.Value)
	rent, _ := store.Get("rent")
	assert.True(rent.Exceptions.Contains(date_util.YMD(2024, 3, 5)))
	assert.Equal(kNow, rent.ModifiedAt)
}

func TestDetachSingleCancelled(t *testing.T) {
	store := newStore()
	addRent(t, store)
	_, changes, err := store.DetachSingle(
		"rent",
		date_util.YMD(2024, 3, 5),
		ledger.DetachOptions{Update: func(r *fin.Record) bool { return false }})
	assert.NoError(t, err)
	assert.True(t, changes.IsEmpty())
	assert.Equal(t, 1, store.Len())
	rent, _ := store.Get("rent")
	assert.Empty(t, rent.Exceptions)
}

func TestDetachSingleErrors(t *testing.T) {
	assert := assert.New(t)
	store := newStore()
	addRent(t, store)
	_, _, err := store.DetachSingle(
		"rent", date_util.YMD(2024, 3, 6), ledger.DetachOptions{})
	assert.Equal(ledger.ErrNoOccurrence, err)
	_, _, err = store.DetachSingle("rent", time.Time{}, ledger.DetachOptions{})
	assert.Equal(ledger.ErrNoOccurrence, err)
	_, _, err = store.DetachSingle(
		"nobody", date_util.YMD(2024, 3, 5), ledger.DetachOptions{})
	assert.Equal(ledger.ErrNoSuchId, err)
	_, _, err = store.DetachSingle(
		"nobody@2024-03-05", time.Time{}, ledger.DetachOptions{})
	assert.Equal(ledger.ErrNoSuchId, err)
}

func TestDetachSingleNonRecurringDeletes(t *testing.T) {
	store := newStore()
	store.AddRecord(fin.Record{Id: "a"})
	_, changes, err := store.DetachSingle(
		"a", date_util.YMD(2024, 3, 5), ledger.DetachOptions{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"a"}, changes.Removed)
	assert.Equal(t, 0, store.Len())
}

func TestTruncateFuture(t *testing.T) {
	assert := assert.New(t)
	store := newStore()
	addRent(t, store)
	early, _, _ := store.DetachSingle(
		"rent", date_util.YMD(2024, 2, 5), ledger.DetachOptions{})
	late, _, _ := store.DetachSingle(
		"rent", date_util.YMD(2024, 7, 5), ledger.DetachOptions{})

	changes, err := store.TruncateFuture("rent", date_util.YMD(2024, 6, 1))
	assert.NoError(err)
	assert.Equal([]string{"rent"}, changes.Updated)
	assert.Equal([]string{late.Id}, changes.Removed)
	rent, _ := store.Get("rent")
	assert.Equal(date_util.YMD(2024, 6, 1), rent.RecurrenceEnd)
	assert.Equal(fin.DateSet{date_util.YMD(2024, 2, 5): true}, rent.Exceptions)
	assert.False(fin.OccursOn(&rent, date_util.YMD(2024, 6, 5)))
	assert.True(fin.OccursOn(&rent, date_util.YMD(2024, 5, 5)))
	_, err = store.Get(early.Id)
	assert.NoError(err)

	// Later bound is a no-op
	changes, err = store.TruncateFuture("rent", date_util.YMD(2024, 9, 1))
	assert.NoError(err)
	assert.True(changes.IsEmpty())
	rent, _ = store.Get("rent")
	assert.Equal(date_util.YMD(2024, 6, 1), rent.RecurrenceEnd)

	// Earlier bound tightens, via a detached record
	changes, err = store.TruncateFuture(early.Id, date_util.YMD(2024, 4, 5))
	assert.NoError(err)
	assert.Equal([]string{"rent"}, changes.Updated)
	rent, _ = store.Get("rent")
	assert.Equal(date_util.YMD(2024, 4, 5), rent.RecurrenceEnd)
}

func TestTruncateFutureNonRecurringDeletes(t *testing.T) {
	store := newStore()
	store.AddRecord(fin.Record{Id: "a"})
	changes, err := store.TruncateFuture("a", date_util.YMD(2024, 3, 5))
	assert.NoError(t, err)
	assert.Equal(t, []string{"a"}, changes.Removed)
}

func TestDeleteAll(t *testing.T) {
	assert := assert.New(t)
	store := newStore()
	addRent(t, store)
	store.AddRecord(fin.Record{Id: "other"})
	child1, _, _ := store.DetachSingle(
		"rent", date_util.YMD(2024, 2, 5), ledger.DetachOptions{})
	child2, _, _ := store.DetachSingle(
		"rent", date_util.YMD(2024, 3, 5), ledger.DetachOptions{})

	changes, err := store.DeleteAll(child1.Id)
	assert.NoError(err)
	assert.Equal([]string{"rent", child1.Id, child2.Id}, changes.Removed)
	for _, r := range store.Records() {
		assert.NotEqual("rent", r.Id)
		assert.NotEqual("rent", r.ParentId)
	}
	assert.Equal(1, store.Len())

	changes, err = store.DeleteAll("other")
	assert.NoError(err)
	assert.Equal([]string{"other"}, changes.Removed)
	_, err = store.DeleteAll("rent")
	assert.Equal(ledger.ErrNoSuchId, err)
}

func TestDeleteOccurrence(t *testing.T) {
	assert := assert.New(t)
	store := newStore()
	addRent(t, store)
	child, _, _ := store.DetachSingle(
		"rent", date_util.YMD(2024, 2, 5), ledger.DetachOptions{})

	changes, err := store.DeleteOccurrence("rent", date_util.YMD(2024, 2, 5))
	assert.NoError(err)
	assert.Equal([]string{child.Id}, changes.Removed)
	assert.Empty(changes.Updated)

	changes, err = store.DeleteOccurrence(
		occurrences.VirtualId("rent", date_util.YMD(2024, 3, 5)), time.Time{})
	assert.NoError(err)
	assert.Equal([]string{"rent"}, changes.Updated)
	rent, _ := store.Get("rent")
	assert.False(fin.OccursOn(&rent, date_util.YMD(2024, 3, 5)))
	assert.Equal(1, store.Len())

	_, err = store.DeleteOccurrence("rent", date_util.YMD(2024, 3, 6))
	assert.Equal(ledger.ErrNoOccurrence, err)
}

func TestChildren(t *testing.T) {
	assert := assert.New(t)
	store := newStore()
	addRent(t, store)
	store.AddRecord(fin.Record{Id: "other", ParentId: "gone"})
	late, _, _ := store.DetachSingle(
		"rent", date_util.YMD(2024, 7, 5), ledger.DetachOptions{})
	early, _, _ := store.DetachSingle(
		"rent", date_util.YMD(2024, 2, 5), ledger.DetachOptions{})
	children := store.Children("rent")
	assert.Len(children, 2)
	assert.Equal(early.Id, children[0].Id)
	assert.Equal(late.Id, children[1].Id)
	children[0].Desc = "changed"
	stored, _ := store.Get(early.Id)
	assert.NotEqual("changed", stored.Desc)
	assert.Empty(store.Children("other"))
}
