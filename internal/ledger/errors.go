package ledger

import (
	"errors"
	"fmt"
)

// Error kinds surfaced across the ledger boundary. The engine and the
// caller-facing surfaces match on these with errors.Is / errors.As.
var (
	// ErrNotFound means the shipment does not exist on the ledger.
	ErrNotFound = errors.New("shipment not found")

	// ErrUnauthorized means the actor is not permitted to perform the
	// write, whether caught locally or reported by the ledger.
	ErrUnauthorized = errors.New("actor not authorized")

	// ErrTimedOut means the client stopped waiting for finalization.
	// The submitted write cannot be withdrawn and may still finalize;
	// a later re-fetch is the only way truth is recovered.
	ErrTimedOut = errors.New("confirmation timed out")

	// ErrTransportUnavailable means the ledger node could not be reached.
	ErrTransportUnavailable = errors.New("ledger unreachable")

	// ErrRejected is the class of all ledger-side rejections; concrete
	// rejections are *RejectedError values carrying the ledger's reason.
	ErrRejected = errors.New("write rejected by ledger")
)

// RejectedError is a ledger-side rejection of a submitted write, with the
// reason the ledger reported. It matches ErrRejected under errors.Is, and
// additionally ErrUnauthorized when the ledger refused the write on role
// grounds: the ledger's verdict is authoritative even when the local
// policy check passed.
type RejectedError struct {
	TxHash string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("write rejected by ledger: %s", e.Reason)
}

func (e *RejectedError) Is(target error) bool {
	if target == ErrRejected {
		return true
	}
	return target == ErrUnauthorized && e.Reason == ReasonNotCustomsWorker
}

// Rejection reasons the SeeChain contract produces. The client only ever
// interprets ReasonNotCustomsWorker (to classify the rejection as an
// authorization failure); all others pass through verbatim.
const (
	ReasonNotCustomsWorker = "not a customs worker"
	ReasonShipmentExists   = "shipment already exists"
	ReasonUnknownShipment  = "unknown shipment"
)
