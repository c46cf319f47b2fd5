package fin

import (
	"sort"

	"github.com/keep94/goconsume"
)

// MethodPopularity tells how often each payment method is used.
type MethodPopularity interface {

	// Popularity returns the popularity of method as a value greater than
	// or equal to zero. The higher the return value the more popular the
	// method.
	Popularity(method string) int
}

// BuildMethodPopularity returns a consumer that consumes Record values to
// build a MethodPopularity instance. The returned consumer consumes at most
// maxRecordsToRead values and skips master records, which are rules rather
// than uses. Caller must call Finalize on returned consumer for the built
// MethodPopularity instance to be stored at methodPopularity.
func BuildMethodPopularity(
	maxRecordsToRead int,
	methodPopularity *MethodPopularity) goconsume.ConsumeFinalizer {
	popularities := make(methodPopularityMap)
	consumer := goconsume.Slice(popularities, 0, maxRecordsToRead)
	consumer = goconsume.Filter(consumer, nonMasters)
	return &methodPopularityConsumer{
		Consumer: consumer, popularities: popularities, result: methodPopularity}
}

// SortMethods returns CashMethod and the names of cards ordered from most
// to least popular. Ties keep CashMethod first, then the card order.
func SortMethods(cards Cards, popularity MethodPopularity) []string {
	result := make([]string, 0, len(cards)+1)
	result = append(result, CashMethod)
	for i := range cards {
		result = append(result, cards[i].Name)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return popularity.Popularity(result[i]) > popularity.Popularity(result[j])
	})
	return result
}

type methodPopularityMap map[string]int

func (m methodPopularityMap) Popularity(method string) int {
	return m[method]
}

func (m methodPopularityMap) CanConsume() bool {
	return true
}

func (m methodPopularityMap) Consume(ptr interface{}) {
	record := ptr.(*Record)
	m[record.Method]++
}

func nonMasters(ptr interface{}) bool {
	return !ptr.(*Record).IsMaster()
}

type methodPopularityConsumer struct {
	goconsume.Consumer
	popularities methodPopularityMap
	result       *MethodPopularity
	finalized    bool
}

func (m *methodPopularityConsumer) Finalize() {
	if m.finalized {
		return
	}
	m.finalized = true
	m.Consumer = goconsume.Nil()
	*m.result = m.popularities
}
