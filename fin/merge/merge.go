// Package merge folds remote snapshots into local collections.
package merge

import (
	"github.com/keep94/cardledger/fin"
)

// Result is the outcome of merging a remote snapshot into a local ledger.
type Result struct {
	// The merged records
	Records []fin.Record
	// True if the remote snapshot replaced the local records wholesale.
	Replaced bool
	// What changed relative to the local records
	Changes fin.Changes
	// Ids of local records that won over a remote version or that the
	// remote does not have yet. Non-empty means the merged ledger still
	// needs to be written to the remote.
	LocalWins []string
}

// Ledger merges remote into local. When pending is false, no local write
// is waiting to reach the remote, so remote replaces local, letting
// deletions made elsewhere propagate. When pending is true, every local
// record is kept, remote records with ids unknown locally are added and
// for ids present on both sides the version with the later ModifiedAt
// wins; on a tie the remote version wins. Ledger does not modify local or
// remote.
func Ledger(local, remote []fin.Record, pending bool) Result {
	if !pending {
		records := copyRecords(remote)
		return Result{
			Records:  records,
			Replaced: true,
			Changes:  fin.Diff(local, records),
		}
	}
	remoteById := make(map[string]*fin.Record, len(remote))
	for i := range remote {
		remoteById[remote[i].Id] = &remote[i]
	}
	var result Result
	result.Records = make([]fin.Record, 0, len(local)+len(remote))
	localIds := make(map[string]bool, len(local))
	for i := range local {
		l := &local[i]
		localIds[l.Id] = true
		r, ok := remoteById[l.Id]
		switch {
		case !ok:
			result.Records = append(result.Records, l.Copy())
			result.LocalWins = append(result.LocalWins, l.Id)
		case l.ModifiedAt.After(r.ModifiedAt):
			result.Records = append(result.Records, l.Copy())
			if !l.Equal(r) {
				result.LocalWins = append(result.LocalWins, l.Id)
			}
		default:
			result.Records = append(result.Records, r.Copy())
		}
	}
	for i := range remote {
		if !localIds[remote[i].Id] {
			result.Records = append(result.Records, remote[i].Copy())
		}
	}
	result.Changes = fin.Diff(local, result.Records)
	return result
}

// Collection merges a remote snapshot of a small collection such as the
// cards or the opening balance, which are always written whole. When
// pending is false, the remote value wins; otherwise the local value is
// kept and will overwrite the remote on the next flush.
func Collection[T any](local, remote T, pending bool) (
	merged T, replaced bool) {
	if pending {
		return local, false
	}
	return remote, true
}

func copyRecords(records []fin.Record) []fin.Record {
	result := make([]fin.Record, len(records))
	for i := range records {
		result[i] = records[i].Copy()
	}
	return result
}
