// Package engine orchestrates the shipment write lifecycle against the
// ledger: authorize, submit, await finalization, reconcile.
//
// The one hard rule throughout: local state transitions only on a
// confirmed re-fetch of ledger truth, never on an optimistic assumption
// of the submitted value. A failed or timed-out write leaves the
// registry exactly as it was.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/seechain/seechain/internal/authz"
	"github.com/seechain/seechain/internal/ledger"
	"github.com/seechain/seechain/internal/projection"
	"github.com/seechain/seechain/internal/registry"
	"github.com/seechain/seechain/pkg/shipmentid"
	"go.uber.org/zap"
)

// Config holds engine timing configuration.
type Config struct {
	// ConfirmTimeout bounds the wait for finalization of one write.
	// The write itself cannot be withdrawn; on timeout the engine
	// reports ErrTimedOut and relies on a later refresh for truth.
	ConfirmTimeout time.Duration

	// RefreshInterval is the period of the background full re-fetch.
	RefreshInterval time.Duration
}

// Engine is the shipment state reconciliation client. Operations on the
// same shipment id are strictly serialized; different ids proceed
// concurrently.
type Engine struct {
	gw     ledger.Gateway
	policy *authz.Policy
	reg    *registry.Registry
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	locks  map[shipmentid.ID]*sync.Mutex
	states map[shipmentid.ID]WriteState
}

// New creates an Engine.
func New(gw ledger.Gateway, policy *authz.Policy, reg *registry.Registry, cfg Config, logger *zap.Logger) *Engine {
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	return &Engine{
		gw:     gw,
		policy: policy,
		reg:    reg,
		cfg:    cfg,
		logger: logger,
		locks:  make(map[shipmentid.ID]*sync.Mutex),
		states: make(map[shipmentid.ID]WriteState),
	}
}

// Registry exposes the engine's shipment store read-only to consumers.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// WriteState reports the current write lifecycle state for a shipment.
func (e *Engine) WriteState(id shipmentid.ID) WriteState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.states[id]; ok {
		return s
	}
	return StateIdle
}

// ListShipments returns all locally known shipments. Call RefreshAll (or
// run the refresh loop) to hydrate from the ledger.
func (e *Engine) ListShipments() []*registry.Shipment {
	return e.reg.List()
}

// GetShipment returns one shipment, fetching and projecting it from the
// ledger on a local cache miss. Returns ledger.ErrNotFound if the
// shipment does not exist on the ledger either.
func (e *Engine) GetShipment(ctx context.Context, id shipmentid.ID) (*registry.Shipment, error) {
	if s, ok := e.reg.Get(id); ok {
		return s, nil
	}
	return e.reconcile(ctx, id)
}

// CreateShipment derives the shipment id from humanKey and runs the full
// write lifecycle for a create operation. On success the returned
// shipment reflects the ledger-confirmed state, including the implicit
// creation log entry.
func (e *Engine) CreateShipment(ctx context.Context, humanKey, origin, destination, actor string) (*registry.Shipment, error) {
	id := shipmentid.Derive(humanKey)

	unlock := e.lockShipment(id)
	defer unlock()

	e.setState(id, StateSubmitting)
	defer e.setState(id, StateIdle)

	if !e.policy.CanCreate(ctx, actor) {
		writesTotal.WithLabelValues(string(ledger.OpCreateShipment), resultUnauthorized).Inc()
		return nil, fmt.Errorf("create %q: %w", humanKey, ledger.ErrUnauthorized)
	}

	op := ledger.Operation{
		Kind:        ledger.OpCreateShipment,
		ShipmentID:  id,
		Actor:       actor,
		HumanKey:    humanKey,
		Origin:      origin,
		Destination: destination,
	}
	return e.runWrite(ctx, id, op)
}

// AppendStatus runs the full write lifecycle for a status update. The
// local authorization check short-circuits before any submission; a
// ledger-side rejection is authoritative even when the local check
// passed.
func (e *Engine) AppendStatus(ctx context.Context, id shipmentid.ID, status, actor string) (*registry.Shipment, error) {
	unlock := e.lockShipment(id)
	defer unlock()

	e.setState(id, StateSubmitting)
	defer e.setState(id, StateIdle)

	// The shipment must exist before a status can be appended.
	if _, known := e.reg.Get(id); !known {
		if _, err := e.gw.ReadShipment(ctx, id); err != nil {
			writesTotal.WithLabelValues(string(ledger.OpAppendStatus), resultError).Inc()
			return nil, fmt.Errorf("append status: %w", err)
		}
	}

	ok, err := e.policy.CanAppendStatus(ctx, actor, id)
	if err != nil {
		writesTotal.WithLabelValues(string(ledger.OpAppendStatus), resultError).Inc()
		return nil, fmt.Errorf("append status: %w", err)
	}
	if !ok {
		writesTotal.WithLabelValues(string(ledger.OpAppendStatus), resultUnauthorized).Inc()
		return nil, fmt.Errorf("append status by %s: %w", actor, ledger.ErrUnauthorized)
	}

	op := ledger.Operation{
		Kind:       ledger.OpAppendStatus,
		ShipmentID: id,
		Actor:      actor,
		Status:     status,
	}
	return e.runWrite(ctx, id, op)
}

// runWrite drives one operation through submit, await-confirmation, and
// reconcile. The caller holds the per-shipment lock and has already
// passed the local authorization gate.
func (e *Engine) runWrite(ctx context.Context, id shipmentid.ID, op ledger.Operation) (*registry.Shipment, error) {
	kind := string(op.Kind)

	pw, err := e.gw.Submit(ctx, op)
	if err != nil {
		writesTotal.WithLabelValues(kind, resultError).Inc()
		return nil, fmt.Errorf("submit %s: %w", kind, err)
	}

	e.setState(id, StateAwaitingConfirmation)
	e.logger.Debug("awaiting confirmation",
		zap.String("tx_hash", pw.TxHash),
		zap.String("shipment_id", id.String()),
	)

	cctx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := e.gw.Confirm(cctx, pw)
	confirmDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		// Rejections and timeouts surface verbatim; the registry keeps
		// its previous validated value. Retrying is the caller's call;
		// a blind retry of a create risks a duplicate shipment.
		writesTotal.WithLabelValues(kind, classify(err)).Inc()
		e.logger.Info("write not finalized",
			zap.String("tx_hash", pw.TxHash),
			zap.String("shipment_id", id.String()),
			zap.Error(err),
		)
		return nil, err
	}

	e.setState(id, StateReconciling)

	// Re-fetch the full log rather than trusting a locally synthesized
	// entry: the ledger-assigned timestamp and sequence may differ from
	// any local guess.
	s, err := e.reconcile(ctx, id)
	if err != nil {
		writesTotal.WithLabelValues(kind, resultError).Inc()
		return nil, fmt.Errorf("reconcile after %s: %w", pw.TxHash, err)
	}

	writesTotal.WithLabelValues(kind, resultOK).Inc()
	e.logger.Info("write finalized",
		zap.String("tx_hash", receipt.TxHash),
		zap.String("shipment_id", id.String()),
		zap.String("status", s.CurrentStatus),
	)
	return s, nil
}

// reconcile re-fetches one shipment from the ledger, re-projects it, and
// publishes the result.
func (e *Engine) reconcile(ctx context.Context, id shipmentid.ID) (*registry.Shipment, error) {
	snap, err := e.gw.ReadShipment(ctx, id)
	if err != nil {
		return nil, err
	}

	s := e.projectSnapshot(snap)
	e.reg.Upsert(s)
	return s, nil
}

// RefreshAll re-fetches every shipment from the ledger and re-projects
// them, absorbing writes from other actors and any of this client's own
// writes that finalized after a confirmation timeout.
func (e *Engine) RefreshAll(ctx context.Context) error {
	snaps, err := e.gw.ReadAllShipments(ctx)
	if err != nil {
		refreshesTotal.WithLabelValues(resultError).Inc()
		return fmt.Errorf("refresh: %w", err)
	}

	for _, snap := range snaps {
		e.reg.Upsert(e.projectSnapshot(snap))
	}

	refreshesTotal.WithLabelValues(resultOK).Inc()
	e.logger.Debug("registry refreshed", zap.Int("shipments", len(snaps)))
	return nil
}

// StartRefreshLoop runs RefreshAll on cfg.RefreshInterval until ctx is
// cancelled.
func (e *Engine) StartRefreshLoop(ctx context.Context) {
	go func() {
		t := time.NewTicker(e.cfg.RefreshInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := e.RefreshAll(ctx); err != nil {
					e.logger.Warn("background refresh failed", zap.Error(err))
				}
			}
		}
	}()
}

// projectSnapshot turns a raw ledger snapshot into a registry value. A
// malformed log is reported and flagged but still projected best-effort;
// read paths stay available even when one shipment's log looks suspect.
func (e *Engine) projectSnapshot(snap *ledger.ShipmentSnapshot) *registry.Shipment {
	proj, perr := projection.Project(snap.Log)
	if perr != nil {
		malformedLogsTotal.Inc()
		e.logger.Warn("malformed shipment log",
			zap.String("shipment_id", snap.ID.String()),
			zap.String("human_key", snap.HumanKey),
			zap.Error(perr),
		)
	}
	return &registry.Shipment{
		ID:            snap.ID,
		HumanKey:      snap.HumanKey,
		Origin:        snap.Origin,
		Destination:   snap.Destination,
		CurrentStatus: proj.CurrentStatus,
		LastUpdate:    proj.LastUpdate,
		Log:           snap.Log,
		LogSuspect:    perr != nil,
	}
}

// lockShipment serializes writes per shipment id and returns the unlock.
func (e *Engine) lockShipment(id shipmentid.ID) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (e *Engine) setState(id shipmentid.ID, s WriteState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s == StateIdle {
		delete(e.states, id)
		return
	}
	e.states[id] = s
}

func classify(err error) string {
	switch {
	case errors.Is(err, ledger.ErrTimedOut):
		return resultTimedOut
	case errors.Is(err, ledger.ErrRejected):
		return resultRejected
	default:
		return resultError
	}
}
