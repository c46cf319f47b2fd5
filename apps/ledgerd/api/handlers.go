package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/aggregators"
	"github.com/keep94/cardledger/fin/budgets"
	"github.com/keep94/cardledger/fin/consumers"
	"github.com/keep94/cardledger/fin/filters"
	"github.com/keep94/cardledger/fin/findb"
	"github.com/keep94/cardledger/fin/ledger"
	"github.com/keep94/cardledger/fin/occurrences"
	"github.com/keep94/cardledger/fin/session"
	"github.com/keep94/cardledger/fin/syncq"
	"github.com/keep94/goconsume"
)

const (
	kMaxPopularityRecords = 200
)

var (
	errBadPageSize = errors.New("api: pagesize must be positive.")
)

// records lists the canonical ledger on GET and adds a record on POST.
// With the reservations parameter, GET includes budget reservations.
func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	if err := allow(r, http.MethodGet, http.MethodPost); err != nil {
		h.reportError(w, err)
		return
	}
	if r.Method == http.MethodGet {
		r.ParseForm()
		records := h.Session.Records()
		if boolParam(r, "reservations") {
			records = budgets.WithReservations(records, h.Session.Reservations())
		}
		writeJSON(w, recordsJSON(records))
		return
	}
	data, err := readBody(r)
	if err != nil {
		h.reportError(w, err)
		return
	}
	record, err := decodeRecord(data)
	if err != nil {
		h.reportError(w, err)
		return
	}
	added, changes, err := h.Session.AddRecord(record)
	if err != nil {
		h.reportError(w, err)
		return
	}
	h.writeChanges(w, changes, &added)
}

// record reads, replaces or removes the record named by the id parameter.
// PUT keeps the id, the creation instant and the parent of the stored
// record and recomputes the posting date.
func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	if err := allow(
		r, http.MethodGet, http.MethodPut, http.MethodDelete); err != nil {
		h.reportError(w, err)
		return
	}
	r.ParseForm()
	id := r.Form.Get("id")
	switch r.Method {
	case http.MethodGet:
		record, err := h.Session.Get(id)
		if err != nil {
			h.reportError(w, err)
			return
		}
		writeJSON(w, toRecordJSON(&record))
	case http.MethodDelete:
		changes, err := h.Session.RemoveRecord(id)
		if err != nil {
			h.reportError(w, err)
			return
		}
		h.writeChanges(w, changes, nil)
	default:
		data, err := readBody(r)
		if err != nil {
			h.reportError(w, err)
			return
		}
		replacement, err := decodeRecord(data)
		if err != nil {
			h.reportError(w, err)
			return
		}
		updated, changes, err := h.Session.UpdateRecord(
			id, func(rec *fin.Record) bool {
				replacement.Id = rec.Id
				replacement.Ts = rec.Ts
				replacement.ParentId = rec.ParentId
				replacement.ModifiedAt = rec.ModifiedAt
				replacement.PostDate = time.Time{}
				*rec = replacement
				return true
			})
		if err != nil {
			h.reportError(w, err)
			return
		}
		h.writeChanges(w, changes, &updated)
	}
}

type occurrencesJSON struct {
	Occurrences []occurrenceJSON `json:"occurrences"`
	More        bool             `json:"more"`
	Stats       occurrences.Stats `json:"stats"`
}

// occurrences pages through the occurrences in [start, end]. start
// defaults to today and end to 30 days after start.
func (h *Handler) occurrences(w http.ResponseWriter, r *http.Request) {
	if err := allow(r, http.MethodGet); err != nil {
		h.reportError(w, err)
		return
	}
	r.ParseForm()
	start, err := dateParam(r, "start", h.Session.Today())
	if err != nil {
		h.reportError(w, err)
		return
	}
	end, err := dateParam(r, "end", start.AddDate(0, 0, 30))
	if err != nil {
		h.reportError(w, err)
		return
	}
	pageNo, err := intParam(r, "page", 0)
	if err != nil {
		h.reportError(w, err)
		return
	}
	pageSize, err := intParam(r, "pagesize", h.pageSize())
	if err != nil || pageSize == 0 {
		h.reportError(w, badRequest{errBadPageSize})
		return
	}
	page := consumers.NewOccurrencePage(pageSize, pageNo)
	filter := filters.CompileOccurrenceSearchSpec(&filters.RecordSearchSpec{
		Desc:         r.Form.Get("desc"),
		Method:       r.Form.Get("method"),
		PlannedOnly:  boolParam(r, "planned"),
		ConcreteOnly: boolParam(r, "concrete"),
	})
	stats := h.Session.OccurrencesInRange(
		start, end, goconsume.Filter(page, filter))
	page.Finalize()
	reply := occurrencesJSON{
		Occurrences: make([]occurrenceJSON, len(page.Occurrences)),
		More:        page.More,
		Stats:       stats,
	}
	for i := range page.Occurrences {
		reply.Occurrences[i] = toOccurrenceJSON(&page.Occurrences[i])
	}
	writeJSON(w, &reply)
}

type dayJSON struct {
	Date        string           `json:"date"`
	Occurrences []occurrenceJSON `json:"occurrences"`
	Total       string           `json:"total"`
}

// day lists the occurrences posting on the date parameter, default today.
func (h *Handler) day(w http.ResponseWriter, r *http.Request) {
	if err := allow(r, http.MethodGet); err != nil {
		h.reportError(w, err)
		return
	}
	r.ParseForm()
	date, err := dateParam(r, "date", h.Session.Today())
	if err != nil {
		h.reportError(w, err)
		return
	}
	reply := dayJSON{Date: fin.FormatDate(date), Occurrences: []occurrenceJSON{}}
	totaler := &aggregators.Totaler{}
	h.Session.TxByDate(date, consumers.Compose(
		goconsume.ConsumerFunc(func(ptr interface{}) {
			reply.Occurrences = append(
				reply.Occurrences,
				toOccurrenceJSON(ptr.(*occurrences.Occurrence)))
		}),
		consumers.FromOccurrenceAggregator(totaler)))
	reply.Total = fin.FormatUSD(totaler.Total)
	writeJSON(w, &reply)
}

// postDate reports when an operation on date with method settles.
func (h *Handler) postDate(w http.ResponseWriter, r *http.Request) {
	if err := allow(r, http.MethodGet); err != nil {
		h.reportError(w, err)
		return
	}
	r.ParseForm()
	date, err := dateParam(r, "date", h.Session.Today())
	if err != nil {
		h.reportError(w, err)
		return
	}
	method := r.Form.Get("method")
	if method == "" {
		method = fin.CashMethod
	}
	writeJSON(w, map[string]string{
		"opDate":   fin.FormatDate(date),
		"method":   method,
		"postDate": fin.FormatDate(h.Session.PostDate(date, method)),
	})
}

// methods lists the payment methods, most used first among recent
// records.
func (h *Handler) methods(w http.ResponseWriter, r *http.Request) {
	if err := allow(r, http.MethodGet); err != nil {
		h.reportError(w, err)
		return
	}
	records := h.Session.Records()
	var popularity fin.MethodPopularity
	consumer := fin.BuildMethodPopularity(kMaxPopularityRecords, &popularity)
	for i := len(records) - 1; i >= 0 && consumer.CanConsume(); i-- {
		consumer.Consume(&records[i])
	}
	consumer.Finalize()
	writeJSON(w, fin.SortMethods(h.Session.Cards(), popularity))
}

type balanceJSON struct {
	Date    string `json:"date"`
	Total   int64  `json:"total"`
	Planned int64  `json:"planned"`
	Amount  string `json:"amount"`
}

// balance reports the balance as of the date parameter, default today.
// Budget reservations count when the reservations parameter is set.
func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	if err := allow(r, http.MethodGet); err != nil {
		h.reportError(w, err)
		return
	}
	r.ParseForm()
	date, err := dateParam(r, "date", h.Session.Today())
	if err != nil {
		h.reportError(w, err)
		return
	}
	total, planned := h.Session.Balance(date, boolParam(r, "reservations"))
	writeJSON(w, &balanceJSON{
		Date:    fin.FormatDate(date),
		Total:   total,
		Planned: planned,
		Amount:  fin.FormatUSD(total),
	})
}

func (h *Handler) reservations(w http.ResponseWriter, r *http.Request) {
	if err := allow(r, http.MethodGet); err != nil {
		h.reportError(w, err)
		return
	}
	writeJSON(w, recordsJSON(h.Session.Reservations()))
}

// cards lists the cards on GET and replaces them on PUT.
func (h *Handler) cards(w http.ResponseWriter, r *http.Request) {
	if err := allow(r, http.MethodGet, http.MethodPut); err != nil {
		h.reportError(w, err)
		return
	}
	if r.Method == http.MethodPut {
		data, err := readBody(r)
		if err != nil {
			h.reportError(w, err)
			return
		}
		cards, err := findb.DecodeCards(data)
		if err != nil {
			h.reportError(w, badRequest{err})
			return
		}
		if _, err := h.Session.SetCards(cards); err != nil {
			h.reportError(w, err)
			return
		}
	}
	data, err := findb.EncodeCards(h.Session.Cards())
	h.writeEncoded(w, data, err)
}

// budgets lists the budgets on GET and replaces them on PUT.
func (h *Handler) budgets(w http.ResponseWriter, r *http.Request) {
	if err := allow(r, http.MethodGet, http.MethodPut); err != nil {
		h.reportError(w, err)
		return
	}
	if r.Method == http.MethodPut {
		data, err := readBody(r)
		if err != nil {
			h.reportError(w, err)
			return
		}
		list, err := findb.DecodeBudgets(data)
		if err != nil {
			h.reportError(w, badRequest{err})
			return
		}
		if err := h.Session.SetBudgets(list); err != nil {
			h.reportError(w, err)
			return
		}
	}
	data, err := findb.EncodeBudgets(h.Session.Budgets())
	h.writeEncoded(w, data, err)
}

// startBalance reads the opening balance on GET and sets it on PUT.
func (h *Handler) startBalance(w http.ResponseWriter, r *http.Request) {
	if err := allow(r, http.MethodGet, http.MethodPut); err != nil {
		h.reportError(w, err)
		return
	}
	if r.Method == http.MethodPut {
		data, err := readBody(r)
		if err != nil {
			h.reportError(w, err)
			return
		}
		balance, err := findb.DecodeBalance(data)
		if err != nil {
			h.reportError(w, badRequest{err})
			return
		}
		if err := h.Session.SetStartBalance(balance); err != nil {
			h.reportError(w, err)
			return
		}
	}
	data, err := findb.EncodeBalance(h.Session.StartBalance())
	h.writeEncoded(w, data, err)
}

func (h *Handler) writeEncoded(
	w http.ResponseWriter, data []byte, err error) {
	if err != nil {
		h.reportError(w, err)
		return
	}
	writeRaw(w, data)
}

// detach detaches the occurrence named by the id and date parameters.
// A non-empty body holds the fields to change on the detached record:
// desc, value, method and planned.
func (h *Handler) detach(w http.ResponseWriter, r *http.Request) {
	if err := allow(r, http.MethodPost); err != nil {
		h.reportError(w, err)
		return
	}
	r.ParseForm()
	date, err := dateParam(r, "date", time.Time{})
	if err != nil {
		h.reportError(w, err)
		return
	}
	data, err := readBody(r)
	if err != nil {
		h.reportError(w, err)
		return
	}
	var patch detachPatch
	if len(data) > 0 {
		if err := json.Unmarshal(data, &patch); err != nil {
			h.reportError(w, badRequest{err})
			return
		}
	}
	child, changes, err := h.Session.DetachSingle(
		r.Form.Get("id"),
		date,
		ledger.DetachOptions{
			MoveToToday: boolParam(r, "today"),
			Update: func(rec *fin.Record) bool {
				patch.apply(rec)
				return true
			},
		})
	if err != nil {
		h.reportError(w, err)
		return
	}
	if child.Id == "" {
		h.writeChanges(w, changes, nil)
		return
	}
	h.writeChanges(w, changes, &child)
}

// detachPatch holds the fields a detach may change. Absent fields keep
// the value of the master.
type detachPatch struct {
	Desc    *string `json:"desc"`
	Value   *int64  `json:"value"`
	Method  *string `json:"method"`
	Planned *bool   `json:"planned"`
}

func (p *detachPatch) apply(rec *fin.Record) {
	if p.Desc != nil {
		rec.Desc = *p.Desc
	}
	if p.Value != nil {
		rec.Value = *p.Value
	}
	if p.Method != nil {
		rec.Method = *p.Method
	}
	if p.Planned != nil {
		rec.Status = fin.Executed
		if *p.Planned {
			rec.Status = fin.Planned
		}
	}
}

// truncate ends the master named by id before the date parameter.
func (h *Handler) truncate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id string, date time.Time) (fin.Changes, error) {
		return h.Session.TruncateFuture(id, date)
	})
}

func (h *Handler) deleteAll(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id string, _ time.Time) (fin.Changes, error) {
		return h.Session.DeleteAll(id)
	})
}

func (h *Handler) deleteOccurrence(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id string, date time.Time) (fin.Changes, error) {
		return h.Session.DeleteOccurrence(id, date)
	})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(string, time.Time) (fin.Changes, error) {
		return h.Session.Reset()
	})
}

func (h *Handler) mutate(
	w http.ResponseWriter,
	r *http.Request,
	f func(id string, date time.Time) (fin.Changes, error)) {
	if err := allow(r, http.MethodPost); err != nil {
		h.reportError(w, err)
		return
	}
	r.ParseForm()
	date, err := dateParam(r, "date", time.Time{})
	if err != nil {
		h.reportError(w, err)
		return
	}
	changes, err := f(r.Form.Get("id"), date)
	if err != nil {
		h.reportError(w, err)
		return
	}
	h.writeChanges(w, changes, nil)
}

type statusJSON struct {
	Profile    string          `json:"profile"`
	Pending    bool            `json:"pending"`
	Dirty      []string        `json:"dirty"`
	Subscribed map[string]bool `json:"subscribed"`
	Ran        *bool           `json:"ran,omitempty"`
}

func (h *Handler) writeStatus(w http.ResponseWriter, ran *bool) {
	reply := statusJSON{
		Profile:    h.Session.Profile(),
		Pending:    h.Session.Pending(),
		Dirty:      nonNil(h.Session.Dirty()),
		Subscribed: make(map[string]bool),
		Ran:        ran,
	}
	for _, c := range session.Collections {
		reply.Subscribed[c] = h.Session.Subscribed(c)
	}
	writeJSON(w, &reply)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if err := allow(r, http.MethodGet); err != nil {
		h.reportError(w, err)
		return
	}
	h.writeStatus(w, nil)
}

func (h *Handler) flush(ctx context.Context) (bool, error) {
	return true, h.Session.Flush(ctx)
}

// lifecycle adapts a sync trigger of the session to a POST endpoint.
// Remote failures leave the changes pending and are reported in the
// status, not as an HTTP error.
func (h *Handler) lifecycle(
	trigger func(ctx context.Context) (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := allow(r, http.MethodPost); err != nil {
			h.reportError(w, err)
			return
		}
		ran, err := trigger(r.Context())
		if err != nil {
			if errors.Is(err, session.ErrClosed) || errors.Is(err, syncq.ErrClosed) {
				h.reportError(w, session.ErrClosed)
				return
			}
			h.Logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Sync failed")
		}
		h.writeStatus(w, &ran)
	}
}
