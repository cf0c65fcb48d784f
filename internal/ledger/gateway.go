// Package ledger defines the typed boundary to the external shipment
// ledger: the operations a client may perform, the values the ledger
// returns, and the error taxonomy of the write path.
//
// HTTPGateway implements Gateway against a ledger node's HTTP API; the
// node package provides an in-process implementation over its Chain for
// tests and single-process development.
package ledger

import (
	"context"

	"github.com/seechain/seechain/pkg/shipmentid"
)

// Gateway is the contract-call boundary to the ledger. It holds no
// business state; all mutation happens on the ledger itself.
type Gateway interface {
	// Submit fires a write and returns a handle immediately, without
	// waiting for consensus finality.
	Submit(ctx context.Context, op Operation) (*PendingWrite, error)

	// Confirm blocks until the ledger reports the write finalized or
	// rejected, or until ctx expires. A rejection is returned as a
	// *RejectedError; a ctx deadline maps to ErrTimedOut.
	Confirm(ctx context.Context, pw *PendingWrite) (*Receipt, error)

	// ReadShipment returns the current snapshot of one shipment,
	// or ErrNotFound.
	ReadShipment(ctx context.Context, id shipmentid.ID) (*ShipmentSnapshot, error)

	// ReadAllShipments returns snapshots of every shipment on the ledger.
	ReadAllShipments(ctx context.Context) ([]*ShipmentSnapshot, error)

	// ReadRole returns the ledger's current role fact for an actor.
	ReadRole(ctx context.Context, actor string) (ActorRole, error)
}
