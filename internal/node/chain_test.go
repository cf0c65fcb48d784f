package node_test

import (
	"context"
	"testing"
	"time"

	"github.com/seechain/seechain/internal/ledger"
	"github.com/seechain/seechain/internal/node"
	"github.com/seechain/seechain/pkg/shipmentid"
	"go.uber.org/zap"
)

var ctx = context.Background()

func createOp(key string) ledger.Operation {
	return ledger.Operation{
		Kind:        ledger.OpCreateShipment,
		ShipmentID:  shipmentid.Derive(key),
		Actor:       "0xa11ce",
		HumanKey:    key,
		Origin:      "Shanghai",
		Destination: "Los Angeles",
	}
}

func appendOp(key, status, actor string) ledger.Operation {
	return ledger.Operation{
		Kind:       ledger.OpAppendStatus,
		ShipmentID: shipmentid.Derive(key),
		Actor:      actor,
		Status:     status,
	}
}

func TestSubmitTx_autoMineCreate(t *testing.T) {
	c := node.NewChain(node.ChainConfig{AutoMine: true}, zap.NewNop())

	info, err := c.SubmitTx(ctx, createOp("SHP001"))
	if err != nil {
		t.Fatal(err)
	}
	if info.State != node.TxFinalized {
		t.Fatalf("state: got %q, want finalized", info.State)
	}

	snap, err := c.Shipment(shipmentid.Derive("SHP001"))
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Log) != 1 || snap.Log[0].Status != "Created" {
		t.Errorf("creation log: %+v", snap.Log)
	}
	if !snap.Log[0].Timestamp.Equal(info.BlockTime) {
		t.Errorf("entry timestamp %v != block time %v", snap.Log[0].Timestamp, info.BlockTime)
	}
}

func TestSubmitTx_validation(t *testing.T) {
	c := node.NewChain(node.ChainConfig{AutoMine: true}, zap.NewNop())

	cases := []ledger.Operation{
		{},                                   // no kind
		{Kind: ledger.OpCreateShipment},      // missing everything
		{Kind: ledger.OpAppendStatus, ShipmentID: shipmentid.Derive("x"), Actor: "0xa"}, // no status
		{Kind: ledger.OpAppendStatus, ShipmentID: shipmentid.Derive("x"), Status: "ok"}, // no actor
	}
	for i, op := range cases {
		if _, err := c.SubmitTx(ctx, op); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestMine_finalizationRules(t *testing.T) {
	c := node.NewChain(node.ChainConfig{AutoMine: true}, zap.NewNop())

	if _, err := c.SubmitTx(ctx, createOp("SHP001")); err != nil {
		t.Fatal(err)
	}

	// Duplicate create is a finalization-time rejection, not a submit error.
	info, err := c.SubmitTx(ctx, createOp("SHP001"))
	if err != nil {
		t.Fatal(err)
	}
	if info.State != node.TxRejected || info.Reason != ledger.ReasonShipmentExists {
		t.Errorf("duplicate create: got %q/%q", info.State, info.Reason)
	}

	// Append without the customs role.
	info, _ = c.SubmitTx(ctx, appendOp("SHP001", "Delivered", "0xa11ce"))
	if info.State != node.TxRejected || info.Reason != ledger.ReasonNotCustomsWorker {
		t.Errorf("non-customs append: got %q/%q", info.State, info.Reason)
	}

	// Append to an unknown shipment.
	if err := c.SetCustomsWorker(ctx, "0xcafe", true); err != nil {
		t.Fatal(err)
	}
	info, _ = c.SubmitTx(ctx, appendOp("SHP404", "Delivered", "0xcafe"))
	if info.State != node.TxRejected || info.Reason != ledger.ReasonUnknownShipment {
		t.Errorf("unknown shipment append: got %q/%q", info.State, info.Reason)
	}

	// With the role granted, the append finalizes.
	info, _ = c.SubmitTx(ctx, appendOp("SHP001", "Delivered", "0xcafe"))
	if info.State != node.TxFinalized {
		t.Errorf("customs append: got %q/%q", info.State, info.Reason)
	}
}

func TestMine_manualMode(t *testing.T) {
	c := node.NewChain(node.ChainConfig{}, zap.NewNop())

	info, err := c.SubmitTx(ctx, createOp("SHP001"))
	if err != nil {
		t.Fatal(err)
	}
	if info.State != node.TxPending {
		t.Fatalf("state before mining: got %q, want pending", info.State)
	}
	if _, err := c.Shipment(shipmentid.Derive("SHP001")); err == nil {
		t.Error("shipment visible before mining")
	}

	if n := c.Mine(ctx); n != 1 {
		t.Errorf("Mine: got %d txs, want 1", n)
	}

	got, err := c.TxStatus(info.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != node.TxFinalized {
		t.Errorf("state after mining: got %q", got.State)
	}
}

func TestWaitTx(t *testing.T) {
	c := node.NewChain(node.ChainConfig{}, zap.NewNop())

	info, err := c.SubmitTx(ctx, createOp("SHP001"))
	if err != nil {
		t.Fatal(err)
	}

	// Expires while pending.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := c.WaitTx(short, info.Hash); err == nil {
		t.Error("WaitTx returned before finalization")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Mine(ctx)
	}()

	got, err := c.WaitTx(ctx, info.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != node.TxFinalized {
		t.Errorf("state: got %q, want finalized", got.State)
	}
}

func TestLogTimestamps_nonDecreasing(t *testing.T) {
	c := node.NewChain(node.ChainConfig{AutoMine: true}, zap.NewNop())
	if err := c.SetCustomsWorker(ctx, "0xcafe", true); err != nil {
		t.Fatal(err)
	}

	if _, err := c.SubmitTx(ctx, createOp("SHP001")); err != nil {
		t.Fatal(err)
	}
	for _, status := range []string{"In Transit", "At Customs", "Delivered"} {
		if _, err := c.SubmitTx(ctx, appendOp("SHP001", status, "0xcafe")); err != nil {
			t.Fatal(err)
		}
	}

	snap, err := c.Shipment(shipmentid.Derive("SHP001"))
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Log) != 4 {
		t.Fatalf("log length: got %d, want 4", len(snap.Log))
	}
	for i := 1; i < len(snap.Log); i++ {
		if snap.Log[i].Timestamp.Before(snap.Log[i-1].Timestamp) {
			t.Errorf("timestamp decreases at entry %d", i)
		}
	}
}

func TestReads_returnCopies(t *testing.T) {
	c := node.NewChain(node.ChainConfig{AutoMine: true}, zap.NewNop())
	if _, err := c.SubmitTx(ctx, createOp("SHP001")); err != nil {
		t.Fatal(err)
	}

	snap, _ := c.Shipment(shipmentid.Derive("SHP001"))
	snap.Log[0].Status = "Hijacked"
	snap.Origin = "Nowhere"

	clean, _ := c.Shipment(shipmentid.Derive("SHP001"))
	if clean.Log[0].Status != "Created" || clean.Origin != "Shanghai" {
		t.Error("caller mutation leaked into chain state")
	}

	all := c.AllShipments()
	if len(all) != 1 || all[0].HumanKey != "SHP001" {
		t.Errorf("AllShipments: %+v", all)
	}
}

func TestRole_defaultsFalse(t *testing.T) {
	c := node.NewChain(node.ChainConfig{}, zap.NewNop())

	if c.Role("0xnobody").IsCustomsWorker {
		t.Error("unknown actor reported as customs worker")
	}

	if err := c.SetCustomsWorker(ctx, "0xcafe", true); err != nil {
		t.Fatal(err)
	}
	if !c.Role("0xcafe").IsCustomsWorker {
		t.Error("granted role not visible")
	}

	if err := c.SetCustomsWorker(ctx, "0xcafe", false); err != nil {
		t.Fatal(err)
	}
	if c.Role("0xcafe").IsCustomsWorker {
		t.Error("revoked role still visible")
	}
}
