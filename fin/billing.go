package fin

import (
	"github.com/keep94/appcommon/str_util"
	"strings"
	"time"
)

// Cards is the card registry. CashMethod is implicit and never listed.
type Cards []Card

// Find returns the card with given name. The second return value is false
// if there is no such card.
func (c Cards) Find(name string) (Card, bool) {
	for i := range c {
		if c[i].Name == name {
			return c[i], true
		}
	}
	return Card{}, false
}

// Validate returns an error if any card is malformed or if two cards share
// a name.
func (c Cards) Validate() error {
	seen := make(map[string]bool, len(c))
	for i := range c {
		if err := c[i].Validate(); err != nil {
			return err
		}
		if seen[c[i].Name] {
			return ErrDuplicateCard
		}
		seen[c[i].Name] = true
	}
	return nil
}

// Resolve maps a method string to the name of a known payment method.
// An exact match wins. Otherwise a unique case and whitespace insensitive
// match wins, then a unique card whose name contains method or is contained
// in it. If no candidate or more than one candidate remains, Resolve
// returns method unchanged and false.
func (c Cards) Resolve(method string) (string, bool) {
	if method == CashMethod {
		return method, true
	}
	if _, ok := c.Find(method); ok {
		return method, true
	}
	normalized := str_util.Normalize(method)
	if normalized == "" {
		return method, false
	}
	if normalized == str_util.Normalize(CashMethod) {
		return CashMethod, true
	}
	if name, ok := c.unique(func(n string) bool {
		return n == normalized
	}); ok {
		return name, true
	}
	if name, ok := c.unique(func(n string) bool {
		return strings.Contains(n, normalized) || strings.Contains(normalized, n)
	}); ok {
		return name, true
	}
	return method, false
}

func (c Cards) unique(matches func(normalizedName string) bool) (
	string, bool) {
	var found string
	count := 0
	for i := range c {
		if matches(str_util.Normalize(c[i].Name)) {
			found = c[i].Name
			count++
		}
	}
	return found, count == 1
}

// PostDate returns the date an operation made on opDate with method settles
// on. For CashMethod, and for methods naming no known card, it is opDate.
// For a card, operations on or before the close day of a month belong to
// the invoice closing that month; later operations belong to the next one.
// The invoice is due on the due day of the closing month, or of the month
// after when the due day is before the close day. Days past the end of a
// month are clamped to the last day of that month.
func PostDate(opDate time.Time, method string, cards Cards) time.Time {
	if method == CashMethod {
		return opDate
	}
	card, ok := cards.Find(method)
	if !ok {
		return opDate
	}
	return card.PostDate(opDate)
}

// PostDate returns the due date of the invoice an operation on opDate
// belongs to.
func (c *Card) PostDate(opDate time.Time) time.Time {
	closeMonth := ClampDay(opDate.Year(), opDate.Month(), 1)
	if opDate.Day() > ClampDay(opDate.Year(), opDate.Month(), c.CloseDay).Day() {
		closeMonth = closeMonth.AddDate(0, 1, 0)
	}
	dueMonth := closeMonth
	if c.DueDay < c.CloseDay {
		dueMonth = dueMonth.AddDate(0, 1, 0)
	}
	return ClampDay(dueMonth.Year(), dueMonth.Month(), c.DueDay)
}
