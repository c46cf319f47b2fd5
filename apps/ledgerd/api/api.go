// Package api serves the ledger of a session as JSON over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/keep94/appcommon/http_util"
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/budgets"
	"github.com/keep94/cardledger/fin/findb"
	"github.com/keep94/cardledger/fin/ledger"
	"github.com/keep94/cardledger/fin/occurrences"
	"github.com/keep94/cardledger/fin/session"
	"github.com/rs/zerolog"
)

const (
	kDefaultPageSize = 50
	kMaxBody         = 1 << 20
)

var (
	errBadMethod = errors.New("api: Method not allowed.")
)

// badRequest marks errors caused by the request itself.
type badRequest struct {
	err error
}

func (b badRequest) Error() string {
	return b.err.Error()
}

func (b badRequest) Unwrap() error {
	return b.err
}

// Handler routes the JSON API of one session.
type Handler struct {
	Session *session.Session
	Logger  zerolog.Logger
	// Zero means 50.
	PageSize int
	mux      *http.ServeMux
}

// New returns a Handler serving s.
func New(s *session.Session, logger zerolog.Logger) *Handler {
	h := &Handler{Session: s, Logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("/records", h.records)
	h.mux.HandleFunc("/record", h.record)
	h.mux.HandleFunc("/occurrences", h.occurrences)
	h.mux.HandleFunc("/day", h.day)
	h.mux.HandleFunc("/postdate", h.postDate)
	h.mux.HandleFunc("/methods", h.methods)
	h.mux.HandleFunc("/balance", h.balance)
	h.mux.HandleFunc("/reservations", h.reservations)
	h.mux.HandleFunc("/cards", h.cards)
	h.mux.HandleFunc("/budgets", h.budgets)
	h.mux.HandleFunc("/startbalance", h.startBalance)
	h.mux.HandleFunc("/detach", h.detach)
	h.mux.HandleFunc("/truncate", h.truncate)
	h.mux.HandleFunc("/deleteall", h.deleteAll)
	h.mux.HandleFunc("/deleteoccurrence", h.deleteOccurrence)
	h.mux.HandleFunc("/reset", h.reset)
	h.mux.HandleFunc("/status", h.status)
	h.mux.HandleFunc("/flush", h.lifecycle(h.flush))
	h.mux.HandleFunc("/online", h.lifecycle(s.ConnectivityRegained))
	h.mux.HandleFunc("/foreground", h.lifecycle(s.Foregrounded))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) pageSize() int {
	if h.PageSize <= 0 {
		return kDefaultPageSize
	}
	return h.PageSize
}

func (h *Handler) reportError(w http.ResponseWriter, err error) {
	var bad badRequest
	switch {
	case errors.As(err, &bad),
		errors.Is(err, fin.ErrBadRecurrence),
		errors.Is(err, fin.ErrDuplicateCard),
		errors.Is(err, fin.ErrNoName),
		errors.Is(err, fin.ErrBadDay),
		errors.Is(err, fin.ErrSameDays),
		errors.Is(err, fin.ErrReservedName),
		errors.Is(err, budgets.ErrNoName),
		errors.Is(err, budgets.ErrBadAmount),
		errors.Is(err, budgets.ErrNoStart),
		errors.Is(err, ledger.ErrDuplicateId):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, errBadMethod):
		http_util.Error(w, http.StatusMethodNotAllowed)
	case errors.Is(err, ledger.ErrNoSuchId), errors.Is(err, ledger.ErrNoOccurrence):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrClosed):
		http_util.Error(w, http.StatusServiceUnavailable)
	default:
		h.Logger.Error().Err(err).Msg("Request failed")
		http_util.ReportError(w, "Error updating ledger.", err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.Encode(v)
}

func writeRaw(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, kMaxBody))
	if err != nil {
		return nil, badRequest{err}
	}
	return data, nil
}

func allow(r *http.Request, methods ...string) error {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return errBadMethod
}

func dateParam(r *http.Request, name string, defaultDate time.Time) (
	time.Time, error) {
	s := r.Form.Get(name)
	if s == "" {
		return defaultDate, nil
	}
	result, err := fin.ParseDate(s)
	if err != nil {
		return time.Time{}, badRequest{fmt.Errorf("bad %s: %q", name, s)}
	}
	return result, nil
}

func intParam(r *http.Request, name string, defaultValue int) (int, error) {
	s := r.Form.Get(name)
	if s == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(s)
	if err != nil || result < 0 {
		return 0, badRequest{fmt.Errorf("bad %s: %q", name, s)}
	}
	return result, nil
}

func boolParam(r *http.Request, name string) bool {
	switch r.Form.Get(name) {
	case "", "0", "false":
		return false
	default:
		return true
	}
}

// occurrenceJSON is the JSON form of an occurrence.
type occurrenceJSON struct {
	findb.JSONRecord
	Amount   string `json:"amount"`
	Virtual  bool   `json:"virtual,omitempty"`
	MasterId string `json:"masterId,omitempty"`
	Match    string `json:"match,omitempty"`
}

func toOccurrenceJSON(o *occurrences.Occurrence) occurrenceJSON {
	var result occurrenceJSON
	result.FromRecord(&o.Record)
	result.Amount = fin.FormatUSD(o.Value)
	result.Virtual = o.Virtual
	result.MasterId = o.MasterId
	if o.Match != occurrences.MatchNone {
		result.Match = o.Match.String()
	}
	return result
}

func toRecordJSON(r *fin.Record) occurrenceJSON {
	return toOccurrenceJSON(&occurrences.Occurrence{Record: *r})
}

func recordsJSON(records []fin.Record) []occurrenceJSON {
	result := make([]occurrenceJSON, len(records))
	for i := range records {
		result[i] = toRecordJSON(&records[i])
	}
	return result
}

func decodeRecord(data []byte) (fin.Record, error) {
	var raw findb.JSONRecord
	var result fin.Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return result, badRequest{err}
	}
	if err := raw.ToRecord(&result); err != nil {
		return result, badRequest{err}
	}
	return result, nil
}

// changesJSON is the reply to a mutation.
type changesJSON struct {
	Added   []string        `json:"added"`
	Removed []string        `json:"removed"`
	Updated []string        `json:"updated"`
	Record  *occurrenceJSON `json:"record,omitempty"`
	Pending bool            `json:"pending"`
}

func (h *Handler) writeChanges(
	w http.ResponseWriter, changes fin.Changes, record *fin.Record) {
	reply := changesJSON{
		Added:   nonNil(changes.Added),
		Removed: nonNil(changes.Removed),
		Updated: nonNil(changes.Updated),
		Pending: h.Session.Pending(),
	}
	if record != nil {
		rj := toRecordJSON(record)
		reply.Record = &rj
	}
	writeJSON(w, &reply)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
