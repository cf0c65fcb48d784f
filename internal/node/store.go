package node

import (
	"context"

	"github.com/seechain/seechain/internal/ledger"
)

// Store is the optional durability layer behind a Chain. Implementations
// persist finalized state only; the mempool is deliberately volatile
// (a restarted node drops pending transactions, as a real node may).
type Store interface {
	// SaveShipment upserts a shipment and replaces its log atomically.
	SaveShipment(ctx context.Context, s *ledger.ShipmentSnapshot) error

	// SaveRole upserts the customs role fact for an actor.
	SaveRole(ctx context.Context, actor string, isCustomsWorker bool) error

	// Load returns all persisted shipments (logs ordered) and roles.
	Load(ctx context.Context) ([]*ledger.ShipmentSnapshot, map[string]bool, error)
}
