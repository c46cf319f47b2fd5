// Package consumers contains useful consumers of basic types
package consumers

import (
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/occurrences"
	"github.com/keep94/goconsume"
)

// RecordAggregator aggregates Record values.
type RecordAggregator interface {
	Include(r *fin.Record)
}

// FromRecordAggregator converts a RecordAggregator to a Consumer of
// fin.Record values.
func FromRecordAggregator(aggregator RecordAggregator) goconsume.Consumer {
	return goconsume.ConsumerFunc(func(ptr interface{}) {
		aggregator.Include(ptr.(*fin.Record))
	})
}

// FromOccurrenceAggregator converts a RecordAggregator to a Consumer of
// occurrences.Occurrence values.
func FromOccurrenceAggregator(
	aggregator RecordAggregator) goconsume.Consumer {
	return goconsume.ConsumerFunc(func(ptr interface{}) {
		aggregator.Include(&ptr.(*occurrences.Occurrence).Record)
	})
}

// Compose creates a new Consumer of occurrences.Occurrence values out of
// each Consumer in consumers. Each consumer receives its own copy.
func Compose(consumers ...goconsume.Consumer) goconsume.Consumer {
	return goconsume.ComposeWithCopy(consumers, (*occurrences.Occurrence)(nil))
}

// Records feeds each record to consumer until it can consume no more.
func Records(records []fin.Record, consumer goconsume.Consumer) {
	for i := range records {
		if !consumer.CanConsume() {
			return
		}
		r := records[i].Copy()
		consumer.Consume(&r)
	}
}

// OccurrencePage is used to fetch a specific fixed-length page of
// occurrences.
type OccurrencePage struct {
	goconsume.ConsumeFinalizer
	// The occurrences in the fetched page. Valid after Finalize.
	Occurrences []occurrences.Occurrence
	// True if there are pages after the fetched one. Valid after Finalize.
	More bool
}

// NewOccurrencePage creates an OccurrencePage. pageSize is the number of
// occurrences in each page; desiredPageNo is the 0-based desired page
// number.
func NewOccurrencePage(pageSize int, desiredPageNo int) *OccurrencePage {
	result := &OccurrencePage{}
	result.ConsumeFinalizer = goconsume.Page(
		desiredPageNo, pageSize, &result.Occurrences, &result.More)
	return result
}
