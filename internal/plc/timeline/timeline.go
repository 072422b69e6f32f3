// Package timeline projects handle ownership over time from the canonical chains
// of every identifier that ever claimed the handle.
package timeline

import (
	"errors"
	"sort"
	"time"

	"plcwatch/internal/plc/chain"
	"plcwatch/internal/plc/models"
)

// Entry is one validity interval of a handle binding. Until is nil while open.
type Entry struct {
	DID      string     `json:"did"`
	Endpoint string     `json:"pds"`
	CID      string     `json:"cid"`
	Since    time.Time  `json:"since"`
	Until    *time.Time `json:"until,omitempty"`
}

func (e Entry) IsOpen() bool {
	return e.Until == nil
}

// Owner is the identifier currently bound to the handle.
type Owner struct {
	DID      string `json:"did"`
	Endpoint string `json:"pds"`
}

// BrokenIdentifier records an identifier left out because its history is not a valid tree.
type BrokenIdentifier struct {
	DID    string `json:"did"`
	Reason string `json:"reason"`
}

// Timeline is the ownership history of one handle.
type Timeline struct {
	Handle  string             `json:"handle"`
	Current *Owner             `json:"current,omitempty"`
	Entries []Entry            `json:"operations"`
	Broken  []BrokenIdentifier `json:"broken,omitempty"`
}

// Build merges the candidate operations (all operations that reference handle)
// into a timeline. histories holds the complete operation set of every identifier
// that owns a candidate, keyed by DID.
//
// An entry ends at the identifier's next canonical operation that carries a
// handle or is a tombstone. A tombstone therefore closes the binding: the
// entry gets an until and the identifier is not Current, even though the
// tombstone itself names no handle.
func Build(handle string, candidates []*models.Operation, histories map[string][]*models.Operation) *Timeline {
	t := &Timeline{Handle: handle, Entries: []Entry{}}
	sequences := make(map[string][]*models.Operation)
	broken := make(map[string]string)

	for _, candidate := range mergeByTime(candidates) {
		if candidate.HandleName() != handle {
			continue
		}
		did := candidate.DID()
		if _, skip := broken[did]; skip {
			continue
		}
		seq, ok := sequences[did]
		if !ok {
			var err error
			seq, err = handleAffecting(did, histories[did])
			if err != nil {
				broken[did] = reason(err)
				continue
			}
			sequences[did] = seq
		}

		pos := indexOf(seq, candidate.CID)
		if pos < 0 {
			// Not on the canonical chain (superseded fork).
			continue
		}
		entry := Entry{
			DID:      did,
			Endpoint: candidate.EndpointURL(),
			CID:      candidate.CID,
			Since:    candidate.CreatedAt,
		}
		if pos+1 < len(seq) {
			until := seq[pos+1].CreatedAt
			entry.Until = &until
		}
		t.Entries = append(t.Entries, entry)
	}

	supersedeOpenEntries(t.Entries)
	if n := len(t.Entries); n > 0 && t.Entries[n-1].IsOpen() {
		last := t.Entries[n-1]
		t.Current = &Owner{DID: last.DID, Endpoint: last.Endpoint}
	}

	for did, why := range broken {
		t.Broken = append(t.Broken, BrokenIdentifier{DID: did, Reason: why})
	}
	sort.Slice(t.Broken, func(i, j int) bool { return t.Broken[i].DID < t.Broken[j].DID })
	return t
}

// handleAffecting filters the identifier's canonical chain to operations that bind
// a handle, plus tombstones, which end any binding.
func handleAffecting(did string, history []*models.Operation) ([]*models.Operation, error) {
	if len(history) == 0 {
		return nil, &models.BrokenTreeError{DID: did, Reason: "history not loaded"}
	}
	canonical, err := chain.Canonical(history)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Operation, 0, len(canonical))
	for _, op := range canonical {
		switch op.Kind {
		case models.KindGenesis, models.KindUpdate:
			if op.Handle != nil {
				out = append(out, op)
			}
		case models.KindTombstone:
			out = append(out, op)
		}
	}
	return out, nil
}

// supersedeOpenEntries closes every open entry except the last at the start of
// the entry that follows it, so at most one entry stays open.
func supersedeOpenEntries(entries []Entry) {
	for i := 0; i+1 < len(entries); i++ {
		if entries[i].IsOpen() {
			until := entries[i+1].Since
			entries[i].Until = &until
		}
	}
}

func indexOf(seq []*models.Operation, cid string) int {
	for i, op := range seq {
		if op.CID == cid {
			return i
		}
	}
	return -1
}

func reason(err error) string {
	var broken *models.BrokenTreeError
	if errors.As(err, &broken) {
		return broken.Reason
	}
	return err.Error()
}
