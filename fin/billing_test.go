package fin

import (
	"testing"

	"github.com/keep94/appcommon/date_util"
	"github.com/stretchr/testify/assert"
)

var (
	kVisa   = Card{Name: "Visa Gold", CloseDay: 10, DueDay: 20}
	kMaster = Card{Name: "Master Black", CloseDay: 25, DueDay: 5}
	kAmex   = Card{Name: "Amex", CloseDay: 31, DueDay: 10}
)

func TestPostDateSameMonth(t *testing.T) {
	cards := Cards{kVisa}
	verifyDate(
		t,
		date_util.YMD(2024, 3, 20),
		PostDate(date_util.YMD(2024, 3, 8), "Visa Gold", cards))
	verifyDate(
		t,
		date_util.YMD(2024, 3, 20),
		PostDate(date_util.YMD(2024, 3, 10), "Visa Gold", cards))
	verifyDate(
		t,
		date_util.YMD(2024, 4, 20),
		PostDate(date_util.YMD(2024, 3, 15), "Visa Gold", cards))
	verifyDate(
		t,
		date_util.YMD(2025, 1, 20),
		PostDate(date_util.YMD(2024, 12, 11), "Visa Gold", cards))
}

func TestPostDateDueBeforeClose(t *testing.T) {
	cards := Cards{kMaster}
	verifyDate(
		t,
		date_util.YMD(2024, 2, 5),
		PostDate(date_util.YMD(2024, 1, 20), "Master Black", cards))
	verifyDate(
		t,
		date_util.YMD(2024, 3, 5),
		PostDate(date_util.YMD(2024, 1, 28), "Master Black", cards))
}

func TestPostDateClampsCloseDay(t *testing.T) {
	cards := Cards{kAmex}
	verifyDate(
		t,
		date_util.YMD(2024, 3, 10),
		PostDate(date_util.YMD(2024, 2, 29), "Amex", cards))
	verifyDate(
		t,
		date_util.YMD(2024, 5, 10),
		PostDate(date_util.YMD(2024, 4, 30), "Amex", cards))
}

func TestPostDateCash(t *testing.T) {
	cards := Cards{kVisa}
	op := date_util.YMD(2024, 3, 15)
	verifyDate(t, op, PostDate(op, CashMethod, cards))
	verifyDate(t, op, PostDate(op, "Unknown card", cards))
	verifyDate(t, op, PostDate(op, "Visa Gold", nil))
}

func TestCardsValidate(t *testing.T) {
	assert := assert.New(t)
	assert.NoError(Cards{kVisa, kMaster}.Validate())
	assert.Equal(ErrDuplicateCard, Cards{kVisa, kMaster, kVisa}.Validate())
	assert.Equal(ErrSameDays, Cards{{Name: "x", CloseDay: 2, DueDay: 2}}.Validate())
}

func TestResolve(t *testing.T) {
	assert := assert.New(t)
	cards := Cards{kVisa, kMaster, {Name: "Visa Platinum", CloseDay: 1, DueDay: 8}}
	name, ok := cards.Resolve("Visa Gold")
	assert.True(ok)
	assert.Equal("Visa Gold", name)
	name, ok = cards.Resolve("  visa   GOLD ")
	assert.True(ok)
	assert.Equal("Visa Gold", name)
	name, ok = cards.Resolve("master")
	assert.True(ok)
	assert.Equal("Master Black", name)
	name, ok = cards.Resolve("cash")
	assert.True(ok)
	assert.Equal(CashMethod, name)

	// Ambiguous
	name, ok = cards.Resolve("visa")
	assert.False(ok)
	assert.Equal("visa", name)

	name, ok = cards.Resolve("Diners")
	assert.False(ok)
	assert.Equal("Diners", name)
	_, ok = cards.Resolve("")
	assert.False(ok)
}
