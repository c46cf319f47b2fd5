package fin

import (
	"errors"
	"fmt"
	"github.com/keep94/appcommon/date_util"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadRecurrence = errors.New("fin: Unrecognized recurrence pattern.")
)

// RecurringUnit represents a unit of time for recurring records.
// The zero value is equivalent to 'months'.
type RecurringUnit int

const (
	Months RecurringUnit = iota
	Years
	Weeks
	// Placeholder for unit count. Does not represent an actual unit.
	// New units must be inserted right before this one.
	RecurringUnitCount
)

func (r RecurringUnit) String() string {
	switch r {
	case Weeks:
		return "weeks"
	case Months:
		return "months"
	case Years:
		return "years"
	default:
		return "unknown"
	}
}

// RecurringPeriod represents the time period between occurrences.
type RecurringPeriod struct {
	// The count of units. Values < 1 are treated as 1.
	Count int
	// The time unit.
	Unit RecurringUnit
}

// ParseRecurrence parses a recurrence pattern. Recognized patterns are
// "weekly", "biweekly", "monthly", "yearly" and "annual" along with
// "FREQ=WEEKLY", "FREQ=MONTHLY" and "FREQ=YEARLY" optionally combined with
// ";INTERVAL=n". Matching ignores case and surrounding whitespace.
func ParseRecurrence(pattern string) (period RecurringPeriod, err error) {
	s := strings.ToUpper(strings.TrimSpace(pattern))
	period.Count = 1
	switch s {
	case "WEEKLY":
		period.Unit = Weeks
		return
	case "BIWEEKLY":
		period.Unit = Weeks
		period.Count = 2
		return
	case "MONTHLY":
		period.Unit = Months
		return
	case "YEARLY", "ANNUAL":
		period.Unit = Years
		return
	}
	freqSeen := false
	for _, part := range strings.Split(s, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			err = ErrBadRecurrence
			return
		}
		switch kv[0] {
		case "FREQ":
			switch kv[1] {
			case "WEEKLY":
				period.Unit = Weeks
			case "MONTHLY":
				period.Unit = Months
			case "YEARLY":
				period.Unit = Years
			default:
				err = ErrBadRecurrence
				return
			}
			freqSeen = true
		case "INTERVAL":
			n, perr := strconv.Atoi(kv[1])
			if perr != nil || n < 1 {
				err = ErrBadRecurrence
				return
			}
			period.Count = n
		default:
			err = ErrBadRecurrence
			return
		}
	}
	if !freqSeen {
		err = ErrBadRecurrence
	}
	return
}

// String returns the canonical pattern of this period so that
// ParseRecurrence(r.String()) == r.
func (r RecurringPeriod) String() string {
	count := r.count()
	if count == 1 {
		switch r.Unit {
		case Weeks:
			return "weekly"
		case Months:
			return "monthly"
		case Years:
			return "yearly"
		}
	}
	var freq string
	switch r.Unit {
	case Weeks:
		freq = "WEEKLY"
	case Years:
		freq = "YEARLY"
	default:
		freq = "MONTHLY"
	}
	return fmt.Sprintf("FREQ=%s;INTERVAL=%d", freq, count)
}

// Nth returns the nth occurrence of this period anchored at anchor. The
// 0th occurrence is anchor itself. Monthly and yearly occurrences keep the
// day of month of anchor, using the last day of the month when a month is
// too short.
func (r RecurringPeriod) Nth(anchor time.Time, n int) time.Time {
	count := r.count()
	switch r.Unit {
	case Weeks:
		return anchor.AddDate(0, 0, 7*count*n)
	case Months:
		return addMonths(anchor, count*n, anchor.Day())
	case Years:
		return addMonths(anchor, 12*count*n, anchor.Day())
	default:
		panic("Unit field not a valid RecurringUnit.")
	}
}

// LastOnOrBefore returns the latest occurrence anchored at anchor that is on
// or before date along with its index. If date is before anchor, returns
// false.
func (r RecurringPeriod) LastOnOrBefore(anchor, date time.Time) (
	occurrence time.Time, n int, ok bool) {
	if date.Before(anchor) {
		return
	}
	count := r.count()
	switch r.Unit {
	case Weeks:
		n = daysBetween(anchor, date) / (7 * count)
	case Months:
		n = monthsBetween(anchor, date) / count
	case Years:
		n = monthsBetween(anchor, date) / (12 * count)
	default:
		panic("Unit field not a valid RecurringUnit.")
	}
	occurrence = r.Nth(anchor, n)
	// Clamped month ends can put the estimate one step past date.
	if occurrence.After(date) {
		n--
		occurrence = r.Nth(anchor, n)
	}
	ok = true
	return
}

// FirstAfter returns the earliest occurrence anchored at anchor that is
// strictly after date.
func (r RecurringPeriod) FirstAfter(anchor, date time.Time) time.Time {
	_, n, ok := r.LastOnOrBefore(anchor, date)
	if !ok {
		return anchor
	}
	return r.Nth(anchor, n+1)
}

func (r RecurringPeriod) count() int {
	if r.Count < 1 {
		return 1
	}
	return r.Count
}

// OccursOn returns true if master produces an occurrence on date. It
// returns false if master is not a master record or has an unrecognized
// pattern, if date is before the OpDate of master, on or after its
// RecurrenceEnd, or listed in its Exceptions.
func OccursOn(master *Record, date time.Time) bool {
	if !master.IsMaster() {
		return false
	}
	period, err := ParseRecurrence(master.Recurrence)
	if err != nil {
		return false
	}
	date = date_util.TimeToDate(date)
	if !master.RecurrenceEnd.IsZero() && !date.Before(master.RecurrenceEnd) {
		return false
	}
	if master.Exceptions.Contains(date) {
		return false
	}
	occurrence, _, ok := period.LastOnOrBefore(master.OpDate, date)
	return ok && occurrence.Equal(date)
}

// ClampDay returns the given day in the given month, or the last day of
// that month if the month is too short.
func ClampDay(year int, month time.Month, day int) time.Time {
	return addMonths(date_util.YMD(year, int(month), 1), 0, day)
}

// daysBetween counts calendar days. time.Duration overflows past about
// 292 years so it cannot be used here.
func daysBetween(start, end time.Time) int {
	const secondsPerDay = 24 * 60 * 60
	return int((date_util.TimeToDate(end).Unix() -
		date_util.TimeToDate(start).Unix()) / secondsPerDay)
}

func monthsBetween(start, end time.Time) int {
	return (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
}

func withDayOfMonth(date time.Time, dayOfMonth int) time.Time {
	return time.Date(
		date.Year(), date.Month(), dayOfMonth, date.Hour(), date.Minute(),
		date.Second(), date.Nanosecond(), date.Location())
}

func addMonths(date time.Time, months, dayOfMonth int) time.Time {
	// dayOfMonth cannot exceed 31
	if dayOfMonth > 31 {
		dayOfMonth = 31
	}
	firstDayOfOriginalMonth := withDayOfMonth(date, 1)
	firstDayOfNewMonth := firstDayOfOriginalMonth.AddDate(0, months, 0)
	newMonthWithCorrectDayOfMonth := withDayOfMonth(
		firstDayOfNewMonth, dayOfMonth)
	// If our month has too few days, use the last day of the month
	if newMonthWithCorrectDayOfMonth.Month() != firstDayOfNewMonth.Month() {
		return newMonthWithCorrectDayOfMonth.AddDate(
			0, 0, -newMonthWithCorrectDayOfMonth.Day())
	}
	return newMonthWithCorrectDayOfMonth
}
