package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/keep94/appcommon/date_util"
	"github.com/keep94/cardledger/fin"
	"github.com/keep94/cardledger/fin/occurrences"
)

// parseDate parses YYYY-MM-DD. An empty string means today.
func parseDate(s string, today time.Time) (time.Time, error) {
	if s == "" {
		return date_util.TimeToDate(today), nil
	}
	result, err := fin.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q, want YYYY-MM-DD", s)
	}
	return result, nil
}

// parseCards parses name:closeDay:dueDay entries separated by commas.
func parseCards(s string) (fin.Cards, error) {
	var result fin.Cards
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var card fin.Card
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("bad card %q, want name:closeDay:dueDay", part)
		}
		card.Name = fields[0]
		if _, err := fmt.Sscan(fields[1], &card.CloseDay); err != nil {
			return nil, fmt.Errorf("bad close day in %q", part)
		}
		if _, err := fmt.Sscan(fields[2], &card.DueDay); err != nil {
			return nil, fmt.Errorf("bad due day in %q", part)
		}
		result = append(result, card)
	}
	return result, nil
}

func writeOccurrence(w io.Writer, o *occurrences.Occurrence) {
	var notes []string
	if o.Virtual {
		notes = append(notes, "virtual")
	}
	if o.Match == occurrences.MatchHeuristic {
		notes = append(notes, "matched:"+o.MasterId)
	}
	fmt.Fprintf(
		w,
		"%s  %s  %12s  %-10s  %-8s  %-30s  %s %s\n",
		fin.FormatDate(o.OpDate),
		fin.FormatDate(o.PostDate),
		fin.FormatUSD(o.Value),
		o.Method,
		o.Status,
		o.Desc,
		o.Id,
		strings.Join(notes, ","))
}

func writeRecord(w io.Writer, r *fin.Record) {
	writeOccurrence(w, &occurrences.Occurrence{Record: *r})
}

func writeChanges(w io.Writer, changes fin.Changes) {
	for _, id := range changes.Added {
		fmt.Fprintln(w, "added", id)
	}
	for _, id := range changes.Updated {
		fmt.Fprintln(w, "updated", id)
	}
	for _, id := range changes.Removed {
		fmt.Fprintln(w, "removed", id)
	}
}

// profileNames returns the sorted distinct profiles found in paths of the
// form prefix/profile/collection.
func profileNames(prefix string, paths []string) []string {
	prefix = strings.Trim(prefix, "/") + "/"
	seen := make(map[string]bool)
	var result []string
	for _, p := range paths {
		p = strings.Trim(p, "/")
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		idx := strings.Index(rest, "/")
		if idx <= 0 {
			continue
		}
		name := rest[:idx]
		if !seen[name] {
			seen[name] = true
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return result
}

// cachedProfiles returns the distinct profiles of cache keys in sorted
// order. Keys look like profile/collection.
func cachedProfiles(keys []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, key := range keys {
		idx := strings.Index(key, "/")
		if idx <= 0 || seen[key[:idx]] {
			continue
		}
		seen[key[:idx]] = true
		result = append(result, key[:idx])
	}
	sort.Strings(result)
	return result
}

// profileKeys returns the cache keys belonging to profile.
func profileKeys(profile string, keys []string) []string {
	var result []string
	for _, key := range keys {
		if strings.HasPrefix(key, profile+"/") {
			result = append(result, key)
		}
	}
	return result
}
