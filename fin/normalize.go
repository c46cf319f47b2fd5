package fin

import (
	"github.com/keep94/appcommon/date_util"
	"time"
)

// Normalize fills in the fields of r that are missing or inconsistent.
// A missing OpDate becomes today; an empty method becomes CashMethod and a
// method naming a card loosely is replaced by that card's name when exactly
// one card matches; a missing PostDate is computed with PostDate; a missing
// Status becomes Planned when OpDate is after today and Executed otherwise.
// Exceptions on or after RecurrenceEnd are dropped. Normalize returns true
// if it changed r. Normalizing a normalized record changes nothing.
func Normalize(r *Record, cards Cards, today time.Time) (changed bool) {
	today = date_util.TimeToDate(today)
	if r.OpDate.IsZero() {
		r.OpDate = today
		changed = true
	} else if d := date_util.TimeToDate(r.OpDate); !d.Equal(r.OpDate) {
		r.OpDate = d
		changed = true
	}
	if r.Method == "" {
		r.Method = CashMethod
		changed = true
	} else if name, ok := cards.Resolve(r.Method); ok && name != r.Method {
		r.Method = name
		changed = true
	}
	if r.PostDate.IsZero() || (r.Method == CashMethod && !r.PostDate.Equal(r.OpDate)) {
		r.PostDate = PostDate(r.OpDate, r.Method, cards)
		changed = true
	}
	if r.Status == PlanUnset {
		if r.OpDate.After(today) {
			r.Status = Planned
		} else {
			r.Status = Executed
		}
		changed = true
	}
	if r.IsMaster() && PruneExceptions(r) {
		changed = true
	}
	return
}

// PruneExceptions drops the exceptions of master on or after its
// RecurrenceEnd and returns true if it dropped any.
func PruneExceptions(master *Record) (changed bool) {
	if master.RecurrenceEnd.IsZero() {
		return false
	}
	for d, ok := range master.Exceptions {
		if !ok || !d.Before(master.RecurrenceEnd) {
			delete(master.Exceptions, d)
			changed = true
		}
	}
	return
}
