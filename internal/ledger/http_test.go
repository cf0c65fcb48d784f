package ledger_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/seechain/seechain/internal/ledger"
	"github.com/seechain/seechain/internal/node"
	"github.com/seechain/seechain/pkg/shipmentid"
	"go.uber.org/zap"
)

var ctx = context.Background()

// newGateway spins a real node server and points an HTTPGateway at it,
// exercising the actual wire format end to end.
func newGateway(t *testing.T, autoMine bool) (*node.Chain, *ledger.HTTPGateway) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chain := node.NewChain(node.ChainConfig{AutoMine: autoMine}, zap.NewNop())
	srv := httptest.NewServer(node.NewServer(chain, node.ServerConfig{}, zap.NewNop()).Router())
	t.Cleanup(srv.Close)

	gw := ledger.NewHTTPGateway(ledger.HTTPConfig{
		NodeURL:      srv.URL,
		PollInterval: 5 * time.Millisecond,
	}, zap.NewNop())
	return chain, gw
}

func createOp(key string) ledger.Operation {
	return ledger.Operation{
		Kind:        ledger.OpCreateShipment,
		ShipmentID:  shipmentid.Derive(key),
		Actor:       "0xa11ce",
		HumanKey:    key,
		Origin:      "Rotterdam",
		Destination: "New York",
	}
}

func TestHTTPGateway_submitConfirmRead(t *testing.T) {
	_, gw := newGateway(t, true)

	pw, err := gw.Submit(ctx, createOp("SHP002"))
	if err != nil {
		t.Fatal(err)
	}
	if pw.TxHash == "" || pw.Op != ledger.OpCreateShipment {
		t.Fatalf("pending write: %+v", pw)
	}

	receipt, err := gw.Confirm(ctx, pw)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.TxHash != pw.TxHash || receipt.BlockTime.IsZero() {
		t.Errorf("receipt: %+v", receipt)
	}

	snap, err := gw.ReadShipment(ctx, pw.ShipmentID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.HumanKey != "SHP002" || len(snap.Log) != 1 {
		t.Errorf("snapshot: %+v", snap)
	}

	all, err := gw.ReadAllShipments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("ReadAllShipments: got %d, want 1", len(all))
	}
}

func TestHTTPGateway_confirmRejection(t *testing.T) {
	_, gw := newGateway(t, true)

	if _, err := gw.Submit(ctx, createOp("SHP002")); err != nil {
		t.Fatal(err)
	}

	// Append without the customs role: accepted into the mempool,
	// rejected at finalization.
	pw, err := gw.Submit(ctx, ledger.Operation{
		Kind:       ledger.OpAppendStatus,
		ShipmentID: shipmentid.Derive("SHP002"),
		Actor:      "0xa11ce",
		Status:     "Delivered",
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = gw.Confirm(ctx, pw)
	var rej *ledger.RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected *RejectedError, got %v", err)
	}
	if rej.Reason != ledger.ReasonNotCustomsWorker {
		t.Errorf("reason: got %q, want %q", rej.Reason, ledger.ReasonNotCustomsWorker)
	}
	if !errors.Is(err, ledger.ErrUnauthorized) {
		t.Error("role rejection should classify as ErrUnauthorized")
	}
}

func TestHTTPGateway_confirmTimeout(t *testing.T) {
	chain, gw := newGateway(t, false) // nobody mines

	pw, err := gw.Submit(ctx, createOp("SHP002"))
	if err != nil {
		t.Fatal(err)
	}

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = gw.Confirm(short, pw)
	if !errors.Is(err, ledger.ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}

	// The write was not withdrawn: mining finalizes it and a fresh
	// Confirm sees the receipt.
	chain.Mine(ctx)
	receipt, err := gw.Confirm(ctx, pw)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.TxHash != pw.TxHash {
		t.Errorf("receipt: %+v", receipt)
	}
}

func TestHTTPGateway_readErrors(t *testing.T) {
	_, gw := newGateway(t, true)

	if _, err := gw.ReadShipment(ctx, shipmentid.Derive("SHP404")); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("unknown shipment: expected ErrNotFound, got %v", err)
	}

	role, err := gw.ReadRole(ctx, "0xnobody")
	if err != nil {
		t.Fatal(err)
	}
	if role.IsCustomsWorker {
		t.Error("unknown actor reported as customs worker")
	}
}

func TestHTTPGateway_transportUnavailable(t *testing.T) {
	gw := ledger.NewHTTPGateway(ledger.HTTPConfig{
		NodeURL:     "http://127.0.0.1:1", // nothing listens here
		HTTPTimeout: 100 * time.Millisecond,
	}, zap.NewNop())

	if _, err := gw.Submit(ctx, createOp("SHP002")); !errors.Is(err, ledger.ErrTransportUnavailable) {
		t.Errorf("submit: expected ErrTransportUnavailable, got %v", err)
	}
	if _, err := gw.ReadAllShipments(ctx); !errors.Is(err, ledger.ErrTransportUnavailable) {
		t.Errorf("read: expected ErrTransportUnavailable, got %v", err)
	}
}
