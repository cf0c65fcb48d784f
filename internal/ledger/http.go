package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/seechain/seechain/pkg/shipmentid"
	"go.uber.org/zap"
)

// HTTPConfig holds HTTP gateway configuration.
type HTTPConfig struct {
	NodeURL      string        // e.g. "http://localhost:8545"
	HTTPTimeout  time.Duration // per-request timeout, default 10s
	PollInterval time.Duration // confirmation poll period, default 500ms
}

// HTTPGateway implements Gateway against a ledger node's HTTP API.
type HTTPGateway struct {
	cfg        HTTPConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPGateway creates an HTTP gateway for the given node.
func NewHTTPGateway(cfg HTTPConfig, logger *zap.Logger) *HTTPGateway {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	cfg.NodeURL = strings.TrimRight(cfg.NodeURL, "/")

	return &HTTPGateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logger,
	}
}

// txStatusResponse mirrors the node's TxInfo JSON.
type txStatusResponse struct {
	Hash      string    `json:"hash"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	BlockTime time.Time `json:"block_time"`
}

// Submit implements Gateway.
func (g *HTTPGateway) Submit(ctx context.Context, op Operation) (*PendingWrite, error) {
	body, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("marshal operation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.NodeURL+"/api/v1/tx", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Error("submit request failed", zap.Error(err))
		return nil, fmt.Errorf("submit: %w: %v", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("read submit response: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("submit: node returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var status txStatusResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}

	g.logger.Debug("tx submitted",
		zap.String("hash", status.Hash),
		zap.String("kind", string(op.Kind)),
	)
	return &PendingWrite{
		TxHash:      status.Hash,
		Op:          op.Kind,
		ShipmentID:  op.ShipmentID,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// Confirm implements Gateway. It polls the node for the transaction's
// state until the write leaves the mempool or ctx expires. Transient
// transport failures during the wait are retried on the next poll: a
// submitted write cannot be withdrawn, so giving up early buys nothing.
func (g *HTTPGateway) Confirm(ctx context.Context, pw *PendingWrite) (*Receipt, error) {
	t := time.NewTicker(g.cfg.PollInterval)
	defer t.Stop()

	for {
		status, err := g.pollTx(ctx, pw.TxHash)
		if err == nil {
			switch status.State {
			case "finalized":
				return &Receipt{TxHash: status.Hash, BlockTime: status.BlockTime}, nil
			case "rejected":
				return nil, &RejectedError{TxHash: status.Hash, Reason: status.Reason}
			}
		} else if ctx.Err() == nil {
			g.logger.Warn("confirmation poll failed, retrying",
				zap.String("hash", pw.TxHash),
				zap.Error(err),
			)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("confirm %s: %w", pw.TxHash, ErrTimedOut)
		case <-t.C:
		}
	}
}

func (g *HTTPGateway) pollTx(ctx context.Context, hash string) (*txStatusResponse, error) {
	var status txStatusResponse
	if err := g.getJSON(ctx, "/api/v1/tx/"+hash, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ReadShipment implements Gateway.
func (g *HTTPGateway) ReadShipment(ctx context.Context, id shipmentid.ID) (*ShipmentSnapshot, error) {
	var snap ShipmentSnapshot
	if err := g.getJSON(ctx, "/api/v1/shipments/"+id.String(), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ReadAllShipments implements Gateway.
func (g *HTTPGateway) ReadAllShipments(ctx context.Context) ([]*ShipmentSnapshot, error) {
	var out struct {
		Shipments []*ShipmentSnapshot `json:"shipments"`
	}
	if err := g.getJSON(ctx, "/api/v1/shipments", &out); err != nil {
		return nil, err
	}
	return out.Shipments, nil
}

// ReadRole implements Gateway.
func (g *HTTPGateway) ReadRole(ctx context.Context, actor string) (ActorRole, error) {
	var role ActorRole
	if err := g.getJSON(ctx, "/api/v1/roles/"+actor, &role); err != nil {
		return ActorRole{}, err
	}
	return role, nil
}

// getJSON performs a GET against the node and decodes the response,
// mapping HTTP status codes onto the boundary error taxonomy.
func (g *HTTPGateway) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.NodeURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", path, ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// handled below
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	default:
		return fmt.Errorf("%s: node returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
