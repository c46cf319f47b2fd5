package fin

import (
	"testing"
	"time"

	"github.com/keep94/appcommon/date_util"
	"github.com/stretchr/testify/assert"
)

var kToday = date_util.YMD(2024, 3, 15)

func TestNormalizeDefaults(t *testing.T) {
	assert := assert.New(t)
	r := Record{Id: "1", Desc: "Coffee", Value: -350}
	assert.True(Normalize(&r, nil, kToday))
	assert.Equal(kToday, r.OpDate)
	assert.Equal(kToday, r.PostDate)
	assert.Equal(CashMethod, r.Method)
	assert.Equal(Executed, r.Status)
}

func TestNormalizePlannedInFuture(t *testing.T) {
	r := Record{Id: "1", OpDate: date_util.YMD(2024, 4, 1)}
	Normalize(&r, nil, kToday)
	assert.Equal(t, Planned, r.Status)
	r = Record{Id: "2", OpDate: date_util.YMD(2024, 3, 1), Status: Planned}
	Normalize(&r, nil, kToday)
	assert.Equal(t, Planned, r.Status)
}

func TestNormalizeResolvesCard(t *testing.T) {
	assert := assert.New(t)
	cards := Cards{kVisa}
	r := Record{Id: "1", OpDate: date_util.YMD(2024, 3, 15), Method: "visa"}
	assert.True(Normalize(&r, cards, kToday))
	assert.Equal("Visa Gold", r.Method)
	assert.Equal(date_util.YMD(2024, 4, 20), r.PostDate)
}

func TestNormalizeFixesCashPostDate(t *testing.T) {
	r := Record{
		Id:       "1",
		OpDate:   date_util.YMD(2024, 3, 2),
		PostDate: date_util.YMD(2024, 3, 20),
		Method:   CashMethod,
		Status:   Executed,
	}
	assert.True(t, Normalize(&r, nil, kToday))
	assert.Equal(t, r.OpDate, r.PostDate)
}

func TestNormalizeKeepsExplicitCardPostDate(t *testing.T) {
	r := Record{
		Id:       "1",
		OpDate:   date_util.YMD(2024, 3, 2),
		PostDate: date_util.YMD(2024, 5, 20),
		Method:   "Visa Gold",
		Status:   Executed,
	}
	assert.False(t, Normalize(&r, Cards{kVisa}, kToday))
	assert.Equal(t, date_util.YMD(2024, 5, 20), r.PostDate)
}

func TestNormalizeIdempotent(t *testing.T) {
	cards := Cards{kVisa, kMaster}
	records := []Record{
		{Id: "1"},
		{Id: "2", OpDate: date_util.YMD(2024, 5, 3).Add(7 * time.Hour), Method: "master"},
		{
			Id:            "3",
			OpDate:        date_util.YMD(2024, 1, 5),
			Recurrence:    "monthly",
			RecurrenceEnd: date_util.YMD(2024, 6, 1),
			Exceptions: DateSet{
				date_util.YMD(2024, 2, 5): true,
				date_util.YMD(2024, 7, 5): true,
			},
		},
	}
	for i := range records {
		Normalize(&records[i], cards, kToday)
		once := records[i].Copy()
		assert.False(t, Normalize(&records[i], cards, kToday))
		assert.Equal(t, once, records[i])
	}
	assert.Equal(t, date_util.YMD(2024, 5, 3), records[1].OpDate)
	assert.Equal(t, "Master Black", records[1].Method)
	assert.Equal(t, DateSet{date_util.YMD(2024, 2, 5): true}, records[2].Exceptions)
}

func TestPruneExceptions(t *testing.T) {
	master := Record{
		Recurrence: "monthly",
		Exceptions: DateSet{
			date_util.YMD(2024, 2, 5): true,
			date_util.YMD(2024, 6, 5): true,
		},
	}
	assert.False(t, PruneExceptions(&master))
	master.RecurrenceEnd = date_util.YMD(2024, 6, 5)
	assert.True(t, PruneExceptions(&master))
	assert.Equal(t, DateSet{date_util.YMD(2024, 2, 5): true}, master.Exceptions)
}
