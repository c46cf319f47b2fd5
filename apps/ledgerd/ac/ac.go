// Package ac serves auto complete candidates drawn from the ledger.
package ac

import (
	"encoding/json"
	"net/http"

	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/aggregators"
	"github.com/keep94/cardledger/fin/consumers"
	"github.com/keep94/goconsume"
)

const (
	kMaxAutoComplete = 1000
)

// RecordsRunner supplies the canonical ledger.
type RecordsRunner interface {
	Records() []fin.Record
}

type Handler struct {
	Store RecordsRunner
	Field func(r *fin.Record) string
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	aca := &aggregators.AutoCompleteAggregator{Field: h.Field}
	acc := consumers.FromRecordAggregator(aca)
	acc = goconsume.Slice(acc, 0, kMaxAutoComplete)
	consumers.Records(h.Store.Records(), acc)
	items := aca.Items
	if items == nil {
		items = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.Encode(items)
}
