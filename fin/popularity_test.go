package fin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMethodPopularity(t *testing.T) {
	assert := assert.New(t)
	var popularities MethodPopularity
	consumer := BuildMethodPopularity(3, &popularities)
	record := Record{Method: "Visa"}

	assert.True(consumer.CanConsume())
	consumer.Consume(&record)

	// Masters don't count
	master := Record{Method: "Amex", Recurrence: "monthly"}
	assert.True(consumer.CanConsume())
	consumer.Consume(&master)

	record.Method = CashMethod
	assert.True(consumer.CanConsume())
	consumer.Consume(&record)

	record.Method = "Visa"
	assert.True(consumer.CanConsume())
	consumer.Consume(&record)

	assert.False(consumer.CanConsume())
	assert.Panics(func() { consumer.Consume(&record) })

	assert.Nil(popularities)
	consumer.Finalize()
	assert.NotNil(popularities)
	assert.False(consumer.CanConsume())
	assert.Panics(func() { consumer.Consume(&record) })

	assert.Equal(2, popularities.Popularity("Visa"))
	assert.Equal(1, popularities.Popularity(CashMethod))
	assert.Equal(0, popularities.Popularity("Amex"))

	cards := Cards{{Name: "Amex"}, {Name: "Visa"}, {Name: "Discover"}}
	assert.Equal(
		[]string{"Visa", CashMethod, "Amex", "Discover"},
		SortMethods(cards, popularities))

	consumer = BuildMethodPopularity(3, &popularities)
	assert.True(consumer.CanConsume())
	consumer.Finalize()
	assert.False(consumer.CanConsume())
	assert.Equal(0, popularities.Popularity("Visa"))
}
