// Package fin declares basic types used in a personal finance ledger with
// recurring operations and card billing cycles.
package fin

import (
	"errors"
	"fmt"
	"github.com/shopspring/decimal"
	"sort"
	"time"
)

// CashMethod is the payment method of operations paid in cash. It behaves
// like a card without a billing cycle: its posting date is always the
// operation date.
const CashMethod = "Cash"

// DateFormat is the format used to represent calendar dates as strings.
const DateFormat = "2006-01-02"

var (
	ErrDuplicateCard = errors.New("fin: Duplicate card name.")
	ErrNoName        = errors.New("fin: Card name required.")
	ErrBadDay        = errors.New("fin: Day of month must be between 1 and 31.")
	ErrSameDays      = errors.New("fin: Close day and due day must differ.")
	ErrReservedName  = errors.New("fin: Card name is reserved.")
)

// PlanStatus tells whether a record is planned or already executed.
type PlanStatus int

const (
	Planned PlanStatus = 1
	// PlanUnset means the status was never recorded. Normalize replaces it.
	PlanUnset PlanStatus = 0
	Executed  PlanStatus = -1
)

func (p PlanStatus) String() string {
	switch p {
	case Planned:
		return "planned"
	case Executed:
		return "executed"
	default:
		return "unset"
	}
}

// DateSet represents a set of calendar dates. Keys are midnight UTC.
type DateSet map[time.Time]bool

// Contains returns true if date is in this set.
func (d DateSet) Contains(date time.Time) bool {
	return d[date]
}

// Copy returns a copy of this set. Copy of a nil set is nil.
func (d DateSet) Copy() DateSet {
	if d == nil {
		return nil
	}
	result := make(DateSet, len(d))
	for k, ok := range d {
		if ok {
			result[k] = true
		}
	}
	return result
}

// Equal returns true if this set and other contain the same dates.
func (d DateSet) Equal(other DateSet) bool {
	if d.Len() != other.Len() {
		return false
	}
	for k, ok := range d {
		if ok && !other[k] {
			return false
		}
	}
	return true
}

// Len returns the number of dates in this set.
func (d DateSet) Len() int {
	result := 0
	for _, ok := range d {
		if ok {
			result++
		}
	}
	return result
}

// Sorted returns the dates in this set in ascending order.
func (d DateSet) Sorted() []time.Time {
	result := make([]time.Time, 0, len(d))
	for k, ok := range d {
		if ok {
			result = append(result, k)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Before(result[j])
	})
	return result
}

// Card represents a credit card with a monthly billing cycle.
type Card struct {
	// Unique, non-empty name.
	Name string
	// Last day of month included in an invoice, 1-31.
	CloseDay int
	// Day of month on which the invoice is due, 1-31.
	DueDay int
}

// Validate returns an error if this card is not well formed.
func (c *Card) Validate() error {
	if c.Name == "" {
		return ErrNoName
	}
	if c.Name == CashMethod {
		return ErrReservedName
	}
	if c.CloseDay < 1 || c.CloseDay > 31 || c.DueDay < 1 || c.DueDay > 31 {
		return ErrBadDay
	}
	if c.CloseDay == c.DueDay {
		return ErrSameDays
	}
	return nil
}

func (c *Card) String() string {
	return fmt.Sprintf("%v", *c)
}

// Record represents a single ledger record. A record is either a master
// rule generating occurrences, a detached occurrence overriding what its
// master would have produced, or a plain one-off operation.
type Record struct {
	// Unique, stable id
	Id   string
	Desc string
	// Value in one cent increments. Negative means expense.
	Value int64
	// The operation date
	OpDate time.Time
	// The date the operation settles on. Derived from OpDate and Method.
	PostDate time.Time
	// Card name or CashMethod
	Method string
	Status PlanStatus
	// Non-empty on master records only. See ParseRecurrence.
	Recurrence string
	// Dates the master does not produce. Masters only.
	Exceptions DateSet
	// Exclusive upper bound of the occurrences of a master. Zero means
	// unbounded.
	RecurrenceEnd time.Time
	// Id of the master this record was detached from, if any.
	ParentId string
	// Creation instant
	Ts time.Time
	// Last mutation instant
	ModifiedAt time.Time
	// Id of the budget this record counts against, if any.
	BudgetTag string
}

// IsMaster returns true if this record generates occurrences.
func (r *Record) IsMaster() bool {
	return r.Recurrence != ""
}

// IsDetached returns true if this record overrides one occurrence of
// a master.
func (r *Record) IsDetached() bool {
	return r.ParentId != "" && r.Recurrence == ""
}

// IsPlanned returns true if this record is planned rather than executed.
func (r *Record) IsPlanned() bool {
	return r.Status == Planned
}

// Copy returns a deep copy of this record.
func (r *Record) Copy() Record {
	result := *r
	result.Exceptions = r.Exceptions.Copy()
	return result
}

func (r *Record) String() string {
	return fmt.Sprintf("%v", *r)
}

// RecordUpdater updates a Record in place and returns true if successful.
type RecordUpdater func(r *Record) bool

// Budget represents an amount earmarked each cycle of a recurrence.
type Budget struct {
	// Unique id
	Id   string
	Name string
	// Amount reserved each cycle in one cent increments. Always positive.
	Amount int64
	// Cycle pattern. See ParseRecurrence.
	Recurrence string
	// First day of the first cycle
	StartDate time.Time
	// Exclusive end of the last cycle. Zero means unbounded.
	EndDate time.Time
	// Card name or CashMethod used to post reservations.
	Method     string
	Active     bool
	ModifiedAt time.Time
}

func (b *Budget) String() string {
	return fmt.Sprintf("%v", *b)
}

// Changes describes what a mutation or merge did to a collection of
// records.
type Changes struct {
	// Ids of added records
	Added []string
	// Ids of removed records
	Removed []string
	// Ids of updated records
	Updated []string
}

// IsEmpty returns true if nothing changed.
func (c *Changes) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0
}

// Merge appends the changes in other to this instance.
func (c *Changes) Merge(other Changes) {
	c.Added = append(c.Added, other.Added...)
	c.Removed = append(c.Removed, other.Removed...)
	c.Updated = append(c.Updated, other.Updated...)
}

// ByPostDate sorts records by posting date; creation instant breaks ties.
func ByPostDate(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].PostDate.Equal(records[j].PostDate) {
			return records[i].PostDate.Before(records[j].PostDate)
		}
		return records[i].Ts.Before(records[j].Ts)
	})
}

// FormatDate formats a calendar date. The zero date formats as the empty
// string.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateFormat)
}

// ParseDate is the inverse of FormatDate.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateFormat, s)
}

// FormatUSD returns amount as dollars and cents.
// 347 -> "3.47"
func FormatUSD(x int64) string {
	return decimal.New(x, -2).StringFixed(2)
}

// ParseUSD is the inverse of FormatUSD.
// "3.47" -> 347
func ParseUSD(s string) (v int64, e error) {
	d, e := decimal.NewFromString(s)
	if e != nil {
		return
	}
	v = d.Shift(2).Round(0).IntPart()
	return
}

// Equal returns true if this record and other have the same content.
// Instants are compared with time.Time.Equal.
func (r *Record) Equal(other *Record) bool {
	return r.Id == other.Id &&
		r.Desc == other.Desc &&
		r.Value == other.Value &&
		r.OpDate.Equal(other.OpDate) &&
		r.PostDate.Equal(other.PostDate) &&
		r.Method == other.Method &&
		r.Status == other.Status &&
		r.Recurrence == other.Recurrence &&
		r.Exceptions.Equal(other.Exceptions) &&
		r.RecurrenceEnd.Equal(other.RecurrenceEnd) &&
		r.ParentId == other.ParentId &&
		r.Ts.Equal(other.Ts) &&
		r.ModifiedAt.Equal(other.ModifiedAt) &&
		r.BudgetTag == other.BudgetTag
}

// Diff reports the ids added, removed and updated going from before to
// after. Ids appear in the order of after, then before for removals.
func Diff(before, after []Record) Changes {
	var result Changes
	old := make(map[string]*Record, len(before))
	for i := range before {
		old[before[i].Id] = &before[i]
	}
	seen := make(map[string]bool, len(after))
	for i := range after {
		seen[after[i].Id] = true
		prev, ok := old[after[i].Id]
		if !ok {
			result.Added = append(result.Added, after[i].Id)
		} else if !prev.Equal(&after[i]) {
			result.Updated = append(result.Updated, after[i].Id)
		}
	}
	for i := range before {
		if !seen[before[i].Id] {
			result.Removed = append(result.Removed, before[i].Id)
		}
	}
	return result
}
