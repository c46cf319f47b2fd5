package export

import (
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keep94/appcommon/date_util"
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/occurrences"
	"github.com/keep94/goconsume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	kToday = date_util.YMD(2024, 3, 15)
)

type fakeStore struct {
	masters, concrete []fin.Record
}

func (f *fakeStore) OccurrencesInRange(
	start, end time.Time, consumer goconsume.Consumer) occurrences.Stats {
	return occurrences.InRange(f.masters, f.concrete, nil, start, end, consumer)
}

func (f *fakeStore) Today() time.Time {
	return kToday
}

func newStore() *fakeStore {
	return &fakeStore{
		masters: []fin.Record{{
			Id:         "rent",
			Desc:       "Rent",
			Value:      -100000,
			OpDate:     date_util.YMD(2024, 1, 1),
			PostDate:   date_util.YMD(2024, 1, 1),
			Method:     fin.CashMethod,
			Status:     fin.Executed,
			Recurrence: "monthly",
		}},
		concrete: []fin.Record{{
			Id:       "coffee",
			Desc:     "Coffee",
			Value:    -350,
			OpDate:   date_util.YMD(2024, 3, 2),
			PostDate: date_util.YMD(2024, 3, 20),
			Method:   "Visa",
			Status:   fin.Executed,
		}},
	}
}

func TestExport(t *testing.T) {
	handler := &Handler{Store: newStore()}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(
		http.MethodGet, "/export?sd=2024-02-01&ed=2024-03-31", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Ledger_2024-02-01_2024-03-31.csv")
	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "PostDate", "Method", "Desc", "Amount", "Status", "Id"}, rows[0])
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"2024-02-01", "2024-02-01", "Cash", "Rent", "-1000.00", "planned", "rent@2024-02-01"}, rows[1])
	assert.Equal(t, "rent@2024-03-01", rows[2][6])
	assert.Equal(t, "coffee", rows[3][6])
}

func TestExportByMethod(t *testing.T) {
	handler := &Handler{Store: newStore()}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(
		http.MethodGet, "/export?sd=2024-02-01&ed=2024-03-31&method=visa", nil))
	require.Equal(t, http.StatusOK, w.Code)
	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "-3.50", rows[1][4])
}

func TestExportErrors(t *testing.T) {
	handler := &Handler{Store: newStore()}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export?sd=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/export", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
