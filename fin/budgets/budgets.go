// Package budgets derives transient reservation records from recurring
// budgets.
package budgets

import (
	"errors"
	"fmt"
	"time"

	"github.com/keep94/appcommon/date_util"
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/occurrences"
	"github.com/keep94/goconsume"
)

var (
	ErrNoName    = errors.New("budgets: Name required.")
	ErrBadAmount = errors.New("budgets: Amount must be positive.")
	ErrNoStart   = errors.New("budgets: Start date required.")
)

// Validate returns an error if b is not well formed.
func Validate(b *fin.Budget) error {
	if b.Name == "" {
		return ErrNoName
	}
	if b.Amount <= 0 {
		return ErrBadAmount
	}
	if b.StartDate.IsZero() {
		return ErrNoStart
	}
	if _, err := fin.ParseRecurrence(b.Recurrence); err != nil {
		return err
	}
	return nil
}

// ReservationId returns the id of the reservation of budget for the cycle
// starting on cycleStart.
func ReservationId(budgetId string, cycleStart time.Time) string {
	return fmt.Sprintf("budget:%s@%s", budgetId, cycleStart.Format(fin.DateFormat))
}

// Cycle returns the cycle of b containing today as [start, end). ok is
// false if b is inactive, malformed or not running today.
func Cycle(b *fin.Budget, today time.Time) (start, end time.Time, ok bool) {
	if !b.Active || b.StartDate.IsZero() {
		return
	}
	period, err := fin.ParseRecurrence(b.Recurrence)
	if err != nil {
		return
	}
	today = date_util.TimeToDate(today)
	if !b.EndDate.IsZero() && !today.Before(b.EndDate) {
		return
	}
	start, _, ok = period.LastOnOrBefore(b.StartDate, today)
	if !ok {
		return
	}
	end = period.FirstAfter(b.StartDate, today)
	if !b.EndDate.IsZero() && b.EndDate.Before(end) {
		end = b.EndDate
	}
	return
}

// Spent returns how much of budgetId the operations in [start, end) used.
// Expenses count positive; refunds reduce the amount. Occurrences of
// masters count the same as concrete records, deduplicated the way
// occurrences.InRange does it.
func Spent(budgetId string, records []fin.Record, start, end time.Time) int64 {
	start = date_util.TimeToDate(start)
	end = date_util.TimeToDate(end)
	if !start.Before(end) {
		return 0
	}
	var result int64
	masters, concrete := occurrences.Split(records)
	occurrences.InRange(
		masters,
		concrete,
		nil,
		start,
		end.AddDate(0, 0, -1),
		goconsume.ConsumerFunc(func(ptr interface{}) {
			o := ptr.(*occurrences.Occurrence)
			if o.BudgetTag == budgetId {
				result -= o.Value
			}
		}))
	return result
}

// Reservations returns one planned record per active budget holding what
// remains of the budget in its current cycle. Budgets with nothing left
// produce no reservation. Reservations happen today and are never meant to
// be stored.
func Reservations(
	budgets []fin.Budget,
	records []fin.Record,
	cards fin.Cards,
	today time.Time) []fin.Record {
	today = date_util.TimeToDate(today)
	var result []fin.Record
	for i := range budgets {
		b := &budgets[i]
		start, end, ok := Cycle(b, today)
		if !ok {
			continue
		}
		remaining := b.Amount - Spent(b.Id, records, start, end)
		if remaining <= 0 {
			continue
		}
		method := b.Method
		if method == "" {
			method = fin.CashMethod
		}
		result = append(result, fin.Record{
			Id:        ReservationId(b.Id, start),
			Desc:      b.Name,
			Value:     -remaining,
			OpDate:    today,
			PostDate:  fin.PostDate(today, method, cards),
			Method:    method,
			Status:    fin.Planned,
			Ts:        start,
			BudgetTag: b.Id,
		})
	}
	return result
}

// WithReservations returns records followed by reservations as a new
// slice sorted by posting date.
func WithReservations(records, reservations []fin.Record) []fin.Record {
	result := make([]fin.Record, 0, len(records)+len(reservations))
	result = append(result, records...)
	result = append(result, reservations...)
	fin.ByPostDate(result)
	return result
}
