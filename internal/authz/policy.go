// Package authz decides whether an actor may perform a write, based on
// role facts read from the ledger at call time.
//
// The local decision is advisory: it saves a doomed submission and gives
// fast feedback, but the ledger re-enforces the same rule at
// finalization, and its verdict wins. Roles are never cached across
// checks; a grant or revocation can land on the ledger at any moment.
package authz

import (
	"context"
	"fmt"

	"github.com/seechain/seechain/internal/ledger"
	"github.com/seechain/seechain/pkg/shipmentid"
	"go.uber.org/zap"
)

// RoleReader reads the ledger's current role fact for an actor.
// ledger.Gateway satisfies this interface.
type RoleReader interface {
	ReadRole(ctx context.Context, actor string) (ledger.ActorRole, error)
}

// Policy gates write attempts before submission.
type Policy struct {
	roles  RoleReader
	logger *zap.Logger
}

// New creates a Policy backed by the given role source.
func New(roles RoleReader, logger *zap.Logger) *Policy {
	return &Policy{roles: roles, logger: logger}
}

// CanCreate reports whether an actor may create a shipment. Registration
// is open: any authenticated actor qualifies.
func (p *Policy) CanCreate(_ context.Context, actor string) bool {
	return actor != ""
}

// CanAppendStatus reports whether an actor may append a status update to
// the given shipment. Only customs workers qualify; ownership of the
// shipment is deliberately not checked: any customs worker may update
// any shipment under the global-transparency model.
func (p *Policy) CanAppendStatus(ctx context.Context, actor string, id shipmentid.ID) (bool, error) {
	if actor == "" {
		return false, nil
	}

	role, err := p.roles.ReadRole(ctx, actor)
	if err != nil {
		return false, fmt.Errorf("read role for %s: %w", actor, err)
	}

	if !role.IsCustomsWorker {
		p.logger.Debug("append denied: not a customs worker",
			zap.String("actor", actor),
			zap.String("shipment_id", id.String()),
		)
		return false, nil
	}
	return true, nil
}
