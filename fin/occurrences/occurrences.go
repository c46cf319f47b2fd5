// Package occurrences projects master records onto calendar dates.
package occurrences

import (
	"sort"
	"strings"
	"time"

	"github.com/keep94/appcommon/date_util"
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/goconsume"
)

// kLookBackDays bounds how far before a posting date ByPostDate searches
// for operation dates. Card invoices are due at most about two months after
// the operation.
const kLookBackDays = 70

// MatchKind tells how a concrete occurrence relates to a master.
type MatchKind int

const (
	// Not linked to any master
	MatchNone MatchKind = iota
	// Linked to one of the masters by ParentId
	MatchParent
	// Matched to a master by method and description or amount. Legacy
	// records without ParentId only.
	MatchHeuristic
)

func (m MatchKind) String() string {
	switch m {
	case MatchParent:
		return "parent"
	case MatchHeuristic:
		return "heuristic"
	default:
		return "none"
	}
}

// Occurrence is one dated item of a projection.
type Occurrence struct {
	fin.Record
	// True if synthesized from a master and never persisted.
	Virtual bool
	// How this concrete record relates to a master, if it does.
	Match MatchKind
	// Id of the master this occurrence belongs to, if any.
	MasterId string
}

// Stats counts what InRange did.
type Stats struct {
	Virtual    int
	Concrete   int
	Suppressed int
	// Virtual occurrences suppressed by a heuristic match
	Heuristic int
}

// VirtualId returns the id of the virtual occurrence of master on date.
func VirtualId(masterId string, date time.Time) string {
	return masterId + "@" + date.Format(fin.DateFormat)
}

// ParseVirtualId is the inverse of VirtualId. Returns false if id is not a
// virtual id.
func ParseVirtualId(id string) (masterId string, date time.Time, ok bool) {
	idx := strings.LastIndex(id, "@")
	if idx <= 0 {
		return
	}
	date, err := time.Parse(fin.DateFormat, id[idx+1:])
	if err != nil {
		return
	}
	return id[:idx], date, true
}

// Split separates records into masters and concrete records.
func Split(records []fin.Record) (masters, concrete []fin.Record) {
	for i := range records {
		if records[i].IsMaster() {
			masters = append(masters, records[i])
		} else {
			concrete = append(concrete, records[i])
		}
	}
	return
}

// InRange emits to consumer the occurrences with operation dates in
// [start, end] as *Occurrence values ordered by date, then by creation
// instant. Concrete records are emitted as they are. For each master that
// produces a date, a virtual occurrence is emitted unless a concrete record
// on that date has the master as parent, or, lacking a parent, has the
// master's method and either its description or its absolute value.
// InRange stops as soon as consumer cannot consume. Masters in concrete
// are ignored.
func InRange(
	masters, concrete []fin.Record,
	cards fin.Cards,
	start, end time.Time,
	consumer goconsume.Consumer) (stats Stats) {
	start = date_util.TimeToDate(start)
	end = date_util.TimeToDate(end)
	byDate := make(map[time.Time][]*fin.Record)
	for i := range concrete {
		r := &concrete[i]
		if r.IsMaster() || r.OpDate.Before(start) || r.OpDate.After(end) {
			continue
		}
		byDate[r.OpDate] = append(byDate[r.OpDate], r)
	}
	masterIds := make(map[string]bool, len(masters))
	for i := range masters {
		masterIds[masters[i].Id] = true
	}
	var day []*Occurrence
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		day = day[:0]
		onDate := byDate[date]
		matches := make([]Occurrence, len(onDate))
		for i, r := range onDate {
			matches[i] = Occurrence{Record: *r}
		}
		for i := range masters {
			m := &masters[i]
			if !fin.OccursOn(m, date) {
				continue
			}
			idx, kind := findMatch(m, onDate)
			if idx >= 0 {
				stats.Suppressed++
				if kind == MatchHeuristic {
					stats.Heuristic++
				}
				if matches[idx].Match != MatchParent {
					matches[idx].Match = kind
					matches[idx].MasterId = m.Id
				}
				continue
			}
			v := Virtualize(m, date, cards)
			day = append(day, &v)
			stats.Virtual++
		}
		for i := range matches {
			if parentId := matches[i].ParentId; parentId != "" {
				if matches[i].MasterId == "" {
					matches[i].MasterId = parentId
				}
				// Detached children sit on excepted dates of their master.
				if matches[i].Match == MatchNone && masterIds[parentId] {
					matches[i].Match = MatchParent
				}
			}
			day = append(day, &matches[i])
			stats.Concrete++
		}
		sort.SliceStable(day, func(i, j int) bool {
			return day[i].Ts.Before(day[j].Ts)
		})
		for _, occ := range day {
			if !consumer.CanConsume() {
				return
			}
			consumer.Consume(occ)
		}
	}
	return
}

// Virtualize returns the virtual occurrence of master on date.
func Virtualize(master *fin.Record, date time.Time, cards fin.Cards) Occurrence {
	r := master.Copy()
	r.Id = VirtualId(master.Id, date)
	r.ParentId = master.Id
	r.Recurrence = ""
	r.Exceptions = nil
	r.RecurrenceEnd = time.Time{}
	r.OpDate = date
	r.PostDate = fin.PostDate(date, r.Method, cards)
	r.Status = fin.Planned
	return Occurrence{Record: r, Virtual: true, MasterId: master.Id}
}

func findMatch(master *fin.Record, onDate []*fin.Record) (int, MatchKind) {
	for i, r := range onDate {
		if r.ParentId == master.Id {
			return i, MatchParent
		}
	}
	for i, r := range onDate {
		if r.ParentId == "" && heuristicMatch(master, r) {
			return i, MatchHeuristic
		}
	}
	return -1, MatchNone
}

func heuristicMatch(master, r *fin.Record) bool {
	if r.Method != master.Method {
		return false
	}
	return r.Desc == master.Desc || abs(r.Value) == abs(master.Value)
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// ByPostDate emits to consumer the occurrences that post on date, in the
// order of InRange.
func ByPostDate(
	masters, concrete []fin.Record,
	cards fin.Cards,
	date time.Time,
	consumer goconsume.Consumer) Stats {
	date = date_util.TimeToDate(date)
	return InRange(
		masters,
		concrete,
		cards,
		date.AddDate(0, 0, -kLookBackDays),
		date,
		goconsume.Filter(consumer, func(ptr interface{}) bool {
			p := ptr.(*Occurrence)
			return p.PostDate.Equal(date)
		}))
}
