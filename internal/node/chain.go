// Package node implements a development ledger node for SeeChain.
//
// The node simulates the external consensus system the client talks to:
// it accepts shipment transactions into a mempool, finalizes them in
// submission order with ledger-assigned block timestamps, enforces the
// contract's authorization rules at finalization time, and serves the
// read API. It is a test double for a real chain, not a consensus
// implementation.
//
// Mining modes mirror the usual local-chain workflows: auto-mine
// (finalize at submit), interval mining (background miner goroutine),
// and manual Mine calls from tests.
package node

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/seechain/seechain/internal/ledger"
	"github.com/seechain/seechain/pkg/shipmentid"
	"go.uber.org/zap"
)

// ChainConfig holds chain simulation settings.
type ChainConfig struct {
	// AutoMine finalizes every transaction at submit time.
	AutoMine bool

	// BlockInterval is the mining period for StartMiner. Ignored when
	// AutoMine is set.
	BlockInterval time.Duration
}

// TxState is the lifecycle state of a submitted transaction.
type TxState string

const (
	TxPending   TxState = "pending"
	TxFinalized TxState = "finalized"
	TxRejected  TxState = "rejected"
)

// TxInfo is the externally visible status of a transaction.
type TxInfo struct {
	Hash      string    `json:"hash"`
	State     TxState   `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	BlockTime time.Time `json:"block_time,omitzero"`
}

type txRecord struct {
	info TxInfo
	op   ledger.Operation
	done chan struct{}
}

// Chain is the simulated ledger state: shipments, roles, and the
// transaction mempool. All methods are safe for concurrent use.
type Chain struct {
	mu        sync.RWMutex
	cfg       ChainConfig
	shipments map[shipmentid.ID]*ledger.ShipmentSnapshot
	order     []shipmentid.ID // creation order, for stable AllShipments output
	customs   map[string]bool
	txs       map[string]*txRecord
	queue     []string // pending tx hashes in submission order
	lastBlock time.Time
	store     Store // nil = memory only
	logger    *zap.Logger
}

// NewChain creates an empty chain.
func NewChain(cfg ChainConfig, logger *zap.Logger) *Chain {
	return &Chain{
		cfg:       cfg,
		shipments: make(map[shipmentid.ID]*ledger.ShipmentSnapshot),
		customs:   make(map[string]bool),
		txs:       make(map[string]*txRecord),
		logger:    logger,
	}
}

// UseStore attaches a durable store, loading previously finalized state
// into the chain. Subsequent finalizations are written through.
func (c *Chain) UseStore(ctx context.Context, store Store) error {
	shipments, roles, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load chain state: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range shipments {
		c.shipments[s.ID] = s
		c.order = append(c.order, s.ID)
		if n := len(s.Log); n > 0 && s.Log[n-1].Timestamp.After(c.lastBlock) {
			c.lastBlock = s.Log[n-1].Timestamp
		}
	}
	for addr, isCustoms := range roles {
		c.customs[addr] = isCustoms
	}
	c.store = store

	c.logger.Info("chain state restored",
		zap.Int("shipments", len(shipments)),
		zap.Int("roles", len(roles)),
	)
	return nil
}

// SubmitTx validates the shape of an operation, assigns a transaction
// hash, and queues it for mining. Authorization and uniqueness rules are
// NOT checked here; they are finalization-time rules, exactly like a
// contract require(): a structurally valid transaction from any actor
// enters the mempool and may later be rejected.
func (c *Chain) SubmitTx(ctx context.Context, op ledger.Operation) (*TxInfo, error) {
	switch op.Kind {
	case ledger.OpCreateShipment:
		if op.HumanKey == "" || op.Origin == "" || op.Destination == "" {
			return nil, fmt.Errorf("create: human key, origin and destination are required")
		}
	case ledger.OpAppendStatus:
		if op.Status == "" {
			return nil, fmt.Errorf("append: status is required")
		}
	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	if op.ShipmentID.IsZero() {
		return nil, fmt.Errorf("shipment id is required")
	}
	if op.Actor == "" {
		return nil, fmt.Errorf("actor is required")
	}

	rec := &txRecord{
		info: TxInfo{Hash: newTxHash(), State: TxPending},
		op:   op,
		done: make(chan struct{}),
	}

	c.mu.Lock()
	c.txs[rec.info.Hash] = rec
	c.queue = append(c.queue, rec.info.Hash)
	if c.cfg.AutoMine {
		c.mineLocked(ctx)
	}
	info := rec.info
	c.mu.Unlock()

	c.logger.Debug("tx submitted",
		zap.String("hash", info.Hash),
		zap.String("kind", string(op.Kind)),
		zap.String("shipment_id", op.ShipmentID.String()),
	)
	return &info, nil
}

// TxStatus returns the current state of a transaction.
func (c *Chain) TxStatus(hash string) (*TxInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.txs[hash]
	if !ok {
		return nil, fmt.Errorf("unknown tx %s", hash)
	}
	info := rec.info
	return &info, nil
}

// WaitTx blocks until the transaction leaves the mempool or ctx expires.
func (c *Chain) WaitTx(ctx context.Context, hash string) (*TxInfo, error) {
	c.mu.RLock()
	rec, ok := c.txs[hash]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tx %s", hash)
	}

	select {
	case <-rec.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.RLock()
	info := rec.info
	c.mu.RUnlock()
	return &info, nil
}

// Mine finalizes all queued transactions in submission order.
func (c *Chain) Mine(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mineLocked(ctx)
}

// StartMiner runs a background goroutine mining on cfg.BlockInterval.
// Call cancel on ctx to stop it.
func (c *Chain) StartMiner(ctx context.Context) {
	interval := c.cfg.BlockInterval
	if interval == 0 {
		interval = time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := c.Mine(ctx); n > 0 {
					c.logger.Debug("block mined", zap.Int("txs", n))
				}
			}
		}
	}()
}

func (c *Chain) mineLocked(ctx context.Context) int {
	n := len(c.queue)
	if n == 0 {
		return 0
	}

	// Ledger-assigned block time, clamped so log timestamps never go
	// backwards even if the host clock does.
	blockTime := time.Now().UTC()
	if blockTime.Before(c.lastBlock) {
		blockTime = c.lastBlock
	}
	c.lastBlock = blockTime

	for _, hash := range c.queue {
		rec := c.txs[hash]
		if reason := c.applyLocked(ctx, rec.op, blockTime); reason != "" {
			rec.info.State = TxRejected
			rec.info.Reason = reason
			c.logger.Debug("tx rejected",
				zap.String("hash", hash),
				zap.String("reason", reason),
			)
		} else {
			rec.info.State = TxFinalized
			rec.info.BlockTime = blockTime
		}
		close(rec.done)
	}
	c.queue = c.queue[:0]
	return n
}

// applyLocked executes one operation against chain state, returning a
// rejection reason or "" on success. This is where the contract's
// require() rules live.
func (c *Chain) applyLocked(ctx context.Context, op ledger.Operation, blockTime time.Time) string {
	switch op.Kind {
	case ledger.OpCreateShipment:
		if _, exists := c.shipments[op.ShipmentID]; exists {
			return ledger.ReasonShipmentExists
		}
		s := &ledger.ShipmentSnapshot{
			ID:          op.ShipmentID,
			HumanKey:    op.HumanKey,
			Origin:      op.Origin,
			Destination: op.Destination,
			Log: []ledger.LogEntry{{
				Timestamp: blockTime,
				Status:    "Created",
				Updater:   op.Actor,
			}},
		}
		c.shipments[op.ShipmentID] = s
		c.order = append(c.order, op.ShipmentID)
		c.persistShipment(ctx, s)
		return ""

	case ledger.OpAppendStatus:
		s, exists := c.shipments[op.ShipmentID]
		if !exists {
			return ledger.ReasonUnknownShipment
		}
		if !c.customs[op.Actor] {
			return ledger.ReasonNotCustomsWorker
		}
		s.Log = append(s.Log, ledger.LogEntry{
			Timestamp: blockTime,
			Status:    op.Status,
			Updater:   op.Actor,
		})
		c.persistShipment(ctx, s)
		return ""
	}
	return fmt.Sprintf("unknown operation kind %q", op.Kind)
}

// SetCustomsWorker grants or revokes the customs role for an actor.
func (c *Chain) SetCustomsWorker(ctx context.Context, actor string, grant bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customs[actor] = grant
	if c.store != nil {
		if err := c.store.SaveRole(ctx, actor, grant); err != nil {
			return fmt.Errorf("persist role: %w", err)
		}
	}
	c.logger.Info("customs role updated",
		zap.String("actor", actor),
		zap.Bool("granted", grant),
	)
	return nil
}

// Role returns the role fact for an actor. Unknown actors hold no role.
func (c *Chain) Role(actor string) ledger.ActorRole {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ledger.ActorRole{IsCustomsWorker: c.customs[actor]}
}

// Shipment returns a copy of one shipment, or ledger.ErrNotFound.
func (c *Chain) Shipment(id shipmentid.ID) (*ledger.ShipmentSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.shipments[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return copySnapshot(s), nil
}

// AllShipments returns copies of every shipment in creation order.
func (c *Chain) AllShipments() []*ledger.ShipmentSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ledger.ShipmentSnapshot, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, copySnapshot(c.shipments[id]))
	}
	return out
}

// persistShipment writes through to the attached store. Persistence
// failures are logged, not fatal: the in-memory chain remains the dev
// node's source of truth for the current process.
func (c *Chain) persistShipment(ctx context.Context, s *ledger.ShipmentSnapshot) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveShipment(ctx, copySnapshot(s)); err != nil {
		c.logger.Error("persist shipment failed",
			zap.String("shipment_id", s.ID.String()),
			zap.Error(err),
		)
	}
}

func copySnapshot(s *ledger.ShipmentSnapshot) *ledger.ShipmentSnapshot {
	cp := *s
	cp.Log = make([]ledger.LogEntry, len(s.Log))
	copy(cp.Log, s.Log)
	return &cp
}

// newTxHash produces a 0x-prefixed 32-byte transaction hash from fresh
// UUID entropy.
func newTxHash() string {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	return "0x" + hex.EncodeToString(sum[:])
}
