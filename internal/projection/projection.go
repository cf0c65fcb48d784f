// Package projection derives a shipment's read model from its raw
// on-ledger log.
//
// Project is a pure function: it never re-sorts, never mutates its input,
// and the same log always yields the same result. Ordering is the
// ledger's contract; the projector only verifies it and flags violations
// without fixing them.
package projection

import (
	"fmt"
	"time"

	"github.com/seechain/seechain/internal/ledger"
)

// StatusCreated is the synthetic status of a shipment with an empty log.
// Downstream display logic gets an explicit state instead of a nil branch.
const StatusCreated = "Created"

// Projection is the derived read model of one shipment log.
type Projection struct {
	CurrentStatus string
	LastUpdate    *time.Time // nil for an empty log
	Log           []ledger.LogEntry
}

// MalformedLogError reports a timestamp decrease inside a log. It is a
// data-quality signal, not a hard failure: Project still returns the
// best-effort result alongside it.
type MalformedLogError struct {
	Index int // position whose timestamp precedes its predecessor's
}

func (e *MalformedLogError) Error() string {
	return fmt.Sprintf("malformed log: timestamp decreases at entry %d", e.Index)
}

// Project computes the current status and last update time from a log in
// ledger-authoritative order.
//
// For a non-empty log the result always reflects the literal last entry,
// even when the log is malformed. The returned error is nil or a
// *MalformedLogError; callers that only want the projection may ignore it.
func Project(entries []ledger.LogEntry) (Projection, error) {
	if len(entries) == 0 {
		return Projection{CurrentStatus: StatusCreated}, nil
	}

	var malformed error
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			malformed = &MalformedLogError{Index: i}
			break
		}
	}

	last := entries[len(entries)-1]
	ts := last.Timestamp
	return Projection{
		CurrentStatus: last.Status,
		LastUpdate:    &ts,
		Log:           entries,
	}, malformed
}
