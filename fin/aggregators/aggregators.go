// Package aggregators contains aggregators of fin.Record values. Each
// aggregator has an Include method and can be easily converted to a
// consumer via the appropriate method in the consumers package.
package aggregators

import (
	"sort"
	"time"

	"github.com/keep94/appcommon/date_util"
	"github.com/keep94/appcommon/str_util"
	"github.com/keep94/cardledger/fin"
)

// Totaler sums up the value of each fin.Record instance.
type Totaler struct {
	// Total is the total so far
	Total int64
}

func (t *Totaler) Include(r *fin.Record) {
	t.Total += r.Value
}

// BalanceTotaler sums up the values of records posting on or before AsOf.
type BalanceTotaler struct {
	AsOf time.Time
	// Total is the total so far
	Total int64
	// PlannedTotal is the part of Total coming from planned records.
	PlannedTotal int64
}

func (b *BalanceTotaler) Include(r *fin.Record) {
	if r.PostDate.After(b.AsOf) {
		return
	}
	b.Total += r.Value
	if r.IsPlanned() {
		b.PlannedTotal += r.Value
	}
}

// MethodTotal is the total of the records posting on one date with one
// method, e.g. a card invoice.
type MethodTotal struct {
	Method   string
	PostDate time.Time
	Total    int64
	Count    int
}

// ByMethodTotaler sums records by method and posting date.
type ByMethodTotaler struct {
	totals map[methodKey]*MethodTotal
}

type methodKey struct {
	method   string
	postDate time.Time
}

// NewByMethodTotaler returns an empty ByMethodTotaler.
func NewByMethodTotaler() *ByMethodTotaler {
	return &ByMethodTotaler{totals: make(map[methodKey]*MethodTotal)}
}

func (b *ByMethodTotaler) Include(r *fin.Record) {
	key := methodKey{method: r.Method, postDate: r.PostDate}
	total, ok := b.totals[key]
	if !ok {
		total = &MethodTotal{Method: r.Method, PostDate: r.PostDate}
		b.totals[key] = total
	}
	total.Total += r.Value
	total.Count++
}

// Totals returns the totals ordered by posting date, then method.
func (b *ByMethodTotaler) Totals() []MethodTotal {
	result := make([]MethodTotal, 0, len(b.totals))
	for _, total := range b.totals {
		result = append(result, *total)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].PostDate.Equal(result[j].PostDate) {
			return result[i].PostDate.Before(result[j].PostDate)
		}
		return result[i].Method < result[j].Method
	})
	return result
}

// AutoCompleteAggregator makes list of auto complete candidates.
type AutoCompleteAggregator struct {
	str_util.AutoComplete
	// The field on which to find auto complete candidates
	Field func(r *fin.Record) string
}

func (a *AutoCompleteAggregator) Include(r *fin.Record) {
	a.Add(a.Field(r))
}

// PeriodTotal is the total of the records posting in one period.
type PeriodTotal struct {
	// Inclusive start, clipped to the start of the totaler.
	Start time.Time
	// Exclusive end, clipped to the end of the totaler.
	End   time.Time
	Total int64
	// The part of Total coming from planned records.
	Planned int64
	Count   int
}

// ByPeriodTotaler sums records by period of posting date. Monthly and
// yearly periods follow the calendar; weekly periods start on the start
// date of the totaler.
type ByPeriodTotaler struct {
	start  time.Time
	end    time.Time
	anchor time.Time
	period fin.RecurringPeriod
	totals map[int]*PeriodTotal
}

// NewByPeriodTotaler returns a ByPeriodTotaler for records posting between
// start inclusive and end exclusive.
func NewByPeriodTotaler(
	start, end time.Time, unit fin.RecurringUnit) *ByPeriodTotaler {
	start = date_util.TimeToDate(start)
	anchor := start
	switch unit {
	case fin.Months:
		anchor = date_util.YMD(start.Year(), int(start.Month()), 1)
	case fin.Years:
		anchor = date_util.YMD(start.Year(), 1, 1)
	}
	return &ByPeriodTotaler{
		start:  start,
		end:    date_util.TimeToDate(end),
		anchor: anchor,
		period: fin.RecurringPeriod{Count: 1, Unit: unit},
		totals: make(map[int]*PeriodTotal),
	}
}

func (b *ByPeriodTotaler) Include(r *fin.Record) {
	if r.PostDate.Before(b.start) || !r.PostDate.Before(b.end) {
		return
	}
	_, n, _ := b.period.LastOnOrBefore(b.anchor, r.PostDate)
	total, ok := b.totals[n]
	if !ok {
		total = &PeriodTotal{}
		b.totals[n] = total
	}
	total.Total += r.Value
	if r.IsPlanned() {
		total.Planned += r.Value
	}
	total.Count++
}

// Totals returns one PeriodTotal for each period between start and end
// in ascending order, including empty periods.
func (b *ByPeriodTotaler) Totals() []PeriodTotal {
	var result []PeriodTotal
	if !b.start.Before(b.end) {
		return nil
	}
	for n := 0; ; n++ {
		start := b.period.Nth(b.anchor, n)
		if !start.Before(b.end) {
			return result
		}
		end := b.period.Nth(b.anchor, n+1)
		if !end.After(b.start) {
			continue
		}
		var pt PeriodTotal
		if total, ok := b.totals[n]; ok {
			pt = *total
		}
		pt.Start = start
		if pt.Start.Before(b.start) {
			pt.Start = b.start
		}
		pt.End = end
		if pt.End.After(b.end) {
			pt.End = b.end
		}
		if !pt.Start.Before(pt.End) {
			continue
		}
		result = append(result, pt)
	}
}
