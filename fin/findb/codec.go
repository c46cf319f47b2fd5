package findb

import (
	"encoding/json"
	"time"

	"github.com/keep94/cardledger/fin"
)

// JSONRecord is the JSON form of a fin.Record. Dates are YYYY-MM-DD
// strings and every field is optional so that records written by older
// clients decode with their missing fields zeroed for fin.Normalize.
type JSONRecord struct {
	Id            string   `json:"id"`
	Desc          string   `json:"desc,omitempty"`
	Value         int64    `json:"value"`
	OpDate        string   `json:"opDate,omitempty"`
	PostDate      string   `json:"postDate,omitempty"`
	Method        string   `json:"method,omitempty"`
	Planned       *bool    `json:"planned,omitempty"`
	Recurrence    string   `json:"recurrence,omitempty"`
	Exceptions    []string `json:"exceptions,omitempty"`
	RecurrenceEnd string   `json:"recurrenceEnd,omitempty"`
	ParentId      string   `json:"parentId,omitempty"`
	Ts            string   `json:"ts,omitempty"`
	ModifiedAt    string   `json:"modifiedAt,omitempty"`
	BudgetTag     string   `json:"budgetTag,omitempty"`
}

// FromRecord sets r to the JSON form of rec.
func (r *JSONRecord) FromRecord(rec *fin.Record) {
	*r = JSONRecord{
		Id:            rec.Id,
		Desc:          rec.Desc,
		Value:         rec.Value,
		OpDate:        fin.FormatDate(rec.OpDate),
		PostDate:      fin.FormatDate(rec.PostDate),
		Method:        rec.Method,
		Recurrence:    rec.Recurrence,
		RecurrenceEnd: fin.FormatDate(rec.RecurrenceEnd),
		ParentId:      rec.ParentId,
		Ts:            formatInstant(rec.Ts),
		ModifiedAt:    formatInstant(rec.ModifiedAt),
		BudgetTag:     rec.BudgetTag,
	}
	if rec.Status != fin.PlanUnset {
		planned := rec.Status == fin.Planned
		r.Planned = &planned
	}
	for _, d := range rec.Exceptions.Sorted() {
		r.Exceptions = append(r.Exceptions, fin.FormatDate(d))
	}
}

// ToRecord stores in rec the record r represents.
func (r *JSONRecord) ToRecord(rec *fin.Record) (err error) {
	*rec = fin.Record{
		Id:         r.Id,
		Desc:       r.Desc,
		Value:      r.Value,
		Method:     r.Method,
		Recurrence: r.Recurrence,
		ParentId:   r.ParentId,
		BudgetTag:  r.BudgetTag,
	}
	if rec.OpDate, err = fin.ParseDate(r.OpDate); err != nil {
		return
	}
	if rec.PostDate, err = fin.ParseDate(r.PostDate); err != nil {
		return
	}
	if rec.RecurrenceEnd, err = fin.ParseDate(r.RecurrenceEnd); err != nil {
		return
	}
	if rec.Ts, err = parseInstant(r.Ts); err != nil {
		return
	}
	if rec.ModifiedAt, err = parseInstant(r.ModifiedAt); err != nil {
		return
	}
	if r.Planned != nil {
		if *r.Planned {
			rec.Status = fin.Planned
		} else {
			rec.Status = fin.Executed
		}
	}
	if len(r.Exceptions) > 0 {
		rec.Exceptions = make(fin.DateSet, len(r.Exceptions))
		for _, s := range r.Exceptions {
			d, e := fin.ParseDate(s)
			if e != nil {
				return e
			}
			rec.Exceptions[d] = true
		}
	}
	return
}

// EncodeRecords encodes records for the cache or the remote.
func EncodeRecords(records []fin.Record) ([]byte, error) {
	raws := make([]JSONRecord, len(records))
	for i := range records {
		raws[i].FromRecord(&records[i])
	}
	return json.Marshal(raws)
}

// DecodeRecords is the inverse of EncodeRecords. Empty data decodes to no
// records.
func DecodeRecords(data []byte) ([]fin.Record, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raws []JSONRecord
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	result := make([]fin.Record, len(raws))
	for i := range raws {
		if err := raws[i].ToRecord(&result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

type rawCard struct {
	Name     string `json:"name"`
	CloseDay int    `json:"closeDay"`
	DueDay   int    `json:"dueDay"`
}

// EncodeCards encodes the card registry.
func EncodeCards(cards fin.Cards) ([]byte, error) {
	raws := make([]rawCard, len(cards))
	for i, c := range cards {
		raws[i] = rawCard{Name: c.Name, CloseDay: c.CloseDay, DueDay: c.DueDay}
	}
	return json.Marshal(raws)
}

// DecodeCards is the inverse of EncodeCards.
func DecodeCards(data []byte) (fin.Cards, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raws []rawCard
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	result := make(fin.Cards, len(raws))
	for i, r := range raws {
		result[i] = fin.Card{Name: r.Name, CloseDay: r.CloseDay, DueDay: r.DueDay}
	}
	return result, nil
}

type rawBudget struct {
	Id         string `json:"id"`
	Name       string `json:"name"`
	Amount     int64  `json:"amount"`
	Recurrence string `json:"recurrence"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
	Method     string `json:"method,omitempty"`
	Active     bool   `json:"active"`
	ModifiedAt string `json:"modifiedAt,omitempty"`
}

// EncodeBudgets encodes budgets.
func EncodeBudgets(budgets []fin.Budget) ([]byte, error) {
	raws := make([]rawBudget, len(budgets))
	for i, b := range budgets {
		raws[i] = rawBudget{
			Id:         b.Id,
			Name:       b.Name,
			Amount:     b.Amount,
			Recurrence: b.Recurrence,
			StartDate:  fin.FormatDate(b.StartDate),
			EndDate:    fin.FormatDate(b.EndDate),
			Method:     b.Method,
			Active:     b.Active,
			ModifiedAt: formatInstant(b.ModifiedAt),
		}
	}
	return json.Marshal(raws)
}

// DecodeBudgets is the inverse of EncodeBudgets.
func DecodeBudgets(data []byte) ([]fin.Budget, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raws []rawBudget
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	result := make([]fin.Budget, len(raws))
	for i, r := range raws {
		b := fin.Budget{
			Id:         r.Id,
			Name:       r.Name,
			Amount:     r.Amount,
			Recurrence: r.Recurrence,
			Method:     r.Method,
			Active:     r.Active,
		}
		var err error
		if b.StartDate, err = fin.ParseDate(r.StartDate); err != nil {
			return nil, err
		}
		if b.EndDate, err = fin.ParseDate(r.EndDate); err != nil {
			return nil, err
		}
		if b.ModifiedAt, err = parseInstant(r.ModifiedAt); err != nil {
			return nil, err
		}
		result[i] = b
	}
	return result, nil
}

// EncodeBalance encodes the opening balance as a dollar amount.
func EncodeBalance(balance int64) ([]byte, error) {
	return json.Marshal(fin.FormatUSD(balance))
}

// DecodeBalance is the inverse of EncodeBalance. Empty data decodes to 0.
func DecodeBalance(data []byte) (int64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return 0, err
	}
	return fin.ParseUSD(s)
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
