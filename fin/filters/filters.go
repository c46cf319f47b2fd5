// Package filters contains useful search filters.
package filters

import (
	"strings"

	"github.com/keep94/appcommon/str_util"
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/occurrences"
	"github.com/keep94/goconsume"
)

// AmountFilter filters by amount. Returns true if amt should be included or
// false otherwise.
type AmountFilter func(amt int64) bool

// RecordSearchSpec specifies what records to search for.
// searches ignore case and whitespace.
type RecordSearchSpec struct {
	Desc string
	// If present, include only records whose method matches.
	Method string
	// If present, include only records whose value matches AF.
	AF AmountFilter
	// If true, include only planned records.
	PlannedOnly bool
	// If true, leave out virtual occurrences.
	ConcreteOnly bool
}

// CompileRecordSearchSpec compiles a search specification into a
// filter of fin.Record values.
func CompileRecordSearchSpec(spec *RecordSearchSpec) goconsume.FilterFunc {
	return goconsume.All(recordFilters(spec)...)
}

// CompileOccurrenceSearchSpec compiles a search specification into a
// filter of occurrences.Occurrence values.
func CompileOccurrenceSearchSpec(
	spec *RecordSearchSpec) goconsume.FilterFunc {
	filters := []goconsume.FilterFunc{}
	if spec.ConcreteOnly {
		filters = append(filters, func(ptr interface{}) bool {
			return !ptr.(*occurrences.Occurrence).Virtual
		})
	}
	for _, f := range recordFilters(spec) {
		f := f
		filters = append(filters, func(ptr interface{}) bool {
			return f(&ptr.(*occurrences.Occurrence).Record)
		})
	}
	return goconsume.All(filters...)
}

func recordFilters(spec *RecordSearchSpec) []goconsume.FilterFunc {
	filters := []goconsume.FilterFunc{}
	if spec.AF != nil {
		filters = append(filters, byAmount(spec.AF))
	}
	if spec.Method != "" {
		filters = append(filters, byMethod(str_util.Normalize(spec.Method)))
	}
	if spec.Desc != "" {
		filters = append(filters, byDesc(str_util.Normalize(spec.Desc)))
	}
	if spec.PlannedOnly {
		filters = append(filters, func(ptr interface{}) bool {
			return ptr.(*fin.Record).IsPlanned()
		})
	}
	return filters
}

func byAmount(f AmountFilter) goconsume.FilterFunc {
	return func(ptr interface{}) bool {
		return f(ptr.(*fin.Record).Value)
	}
}

func byMethod(method string) goconsume.FilterFunc {
	return func(ptr interface{}) bool {
		return str_util.Normalize(ptr.(*fin.Record).Method) == method
	}
}

func byDesc(desc string) goconsume.FilterFunc {
	return func(ptr interface{}) bool {
		return strings.Contains(str_util.Normalize(ptr.(*fin.Record).Desc), desc)
	}
}
