// Package export serves occurrences as a CSV download.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/keep94/appcommon/http_util"
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/filters"
	"github.com/keep94/cardledger/fin/occurrences"
	"github.com/keep94/goconsume"
)

const (
	kMaxLines = 5000
)

// OccurrencesRunner emits occurrences in a date range.
type OccurrencesRunner interface {
	OccurrencesInRange(
		start, end time.Time, consumer goconsume.Consumer) occurrences.Stats
	Today() time.Time
}

// Handler writes the occurrences of [sd, ed] as CSV. sd defaults to one
// month ago and ed to today. The method parameter restricts to one
// payment method.
type Handler struct {
	Store OccurrencesRunner
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http_util.Error(w, http.StatusMethodNotAllowed)
		return
	}
	r.ParseForm()
	now := h.Store.Today()
	start, err := parseDate(r.Form.Get("sd"), now.AddDate(0, -1, 0))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := parseDate(r.Form.Get("ed"), now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	buffer := &bytes.Buffer{}
	csvWriter := csv.NewWriter(buffer)
	var columns [7]string
	columns[0] = "Date"
	columns[1] = "PostDate"
	columns[2] = "Method"
	columns[3] = "Desc"
	columns[4] = "Amount"
	columns[5] = "Status"
	columns[6] = "Id"
	csvWriter.Write(columns[:])
	var consumer goconsume.Consumer
	consumer = goconsume.ConsumerFunc(func(ptr interface{}) {
		o := ptr.(*occurrences.Occurrence)
		columns[0] = fin.FormatDate(o.OpDate)
		columns[1] = fin.FormatDate(o.PostDate)
		columns[2] = o.Method
		columns[3] = o.Desc
		columns[4] = fin.FormatUSD(o.Value)
		columns[5] = o.Status.String()
		columns[6] = o.Id
		csvWriter.Write(columns[:])
	})
	consumer = goconsume.Slice(consumer, 0, kMaxLines+1)
	consumer = goconsume.Filter(
		consumer,
		filters.CompileOccurrenceSearchSpec(
			&filters.RecordSearchSpec{Method: r.Form.Get("method")}))
	h.Store.OccurrencesInRange(start, end, consumer)
	if !consumer.CanConsume() {
		http.Error(
			w,
			"File too big. Try a smaller date range",
			http.StatusRequestEntityTooLarge)
		return
	}
	csvWriter.Flush()
	header := w.Header()
	header.Add("Content-Type", "text/csv")
	header.Add(
		"Content-Disposition",
		fmt.Sprintf(
			"attachment; filename=\"Ledger_%s_%s.csv\"",
			fin.FormatDate(start),
			fin.FormatDate(end)))
	buffer.WriteTo(w)
}

func parseDate(s string, defaultDate time.Time) (time.Time, error) {
	if s == "" {
		return defaultDate, nil
	}
	result, err := fin.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q, want YYYY-MM-DD", s)
	}
	return result, nil
}
