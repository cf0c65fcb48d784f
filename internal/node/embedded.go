package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seechain/seechain/internal/ledger"
	"github.com/seechain/seechain/pkg/shipmentid"
)

// EmbeddedGateway adapts an in-process Chain to the ledger.Gateway
// contract. It is the gateway of choice for tests and for single-process
// development where running a separate node is overkill; semantics match
// HTTPGateway exactly, including the error taxonomy.
type EmbeddedGateway struct {
	chain *Chain
}

// NewEmbeddedGateway wraps a chain.
func NewEmbeddedGateway(chain *Chain) *EmbeddedGateway {
	return &EmbeddedGateway{chain: chain}
}

// Submit implements ledger.Gateway.
func (g *EmbeddedGateway) Submit(ctx context.Context, op ledger.Operation) (*ledger.PendingWrite, error) {
	info, err := g.chain.SubmitTx(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	return &ledger.PendingWrite{
		TxHash:      info.Hash,
		Op:          op.Kind,
		ShipmentID:  op.ShipmentID,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// Confirm implements ledger.Gateway.
func (g *EmbeddedGateway) Confirm(ctx context.Context, pw *ledger.PendingWrite) (*ledger.Receipt, error) {
	info, err := g.chain.WaitTx(ctx, pw.TxHash)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("confirm %s: %w", pw.TxHash, ledger.ErrTimedOut)
		}
		return nil, fmt.Errorf("confirm %s: %w", pw.TxHash, err)
	}

	switch info.State {
	case TxFinalized:
		return &ledger.Receipt{TxHash: info.Hash, BlockTime: info.BlockTime}, nil
	case TxRejected:
		return nil, &ledger.RejectedError{TxHash: info.Hash, Reason: info.Reason}
	default:
		return nil, fmt.Errorf("confirm %s: unexpected tx state %q", info.Hash, info.State)
	}
}

// ReadShipment implements ledger.Gateway.
func (g *EmbeddedGateway) ReadShipment(_ context.Context, id shipmentid.ID) (*ledger.ShipmentSnapshot, error) {
	return g.chain.Shipment(id)
}

// ReadAllShipments implements ledger.Gateway.
func (g *EmbeddedGateway) ReadAllShipments(_ context.Context) ([]*ledger.ShipmentSnapshot, error) {
	return g.chain.AllShipments(), nil
}

// ReadRole implements ledger.Gateway.
func (g *EmbeddedGateway) ReadRole(_ context.Context, actor string) (ledger.ActorRole, error) {
	return g.chain.Role(actor), nil
}
