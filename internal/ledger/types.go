package ledger

import (
	"time"

	"github.com/seechain/seechain/pkg/shipmentid"
)

// LogEntry is a single status record in a shipment's on-ledger log.
// Entries are immutable once finalized and are ordered by the ledger,
// with timestamps non-decreasing along the log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Updater   string    `json:"updater"`
}

// ShipmentSnapshot is the raw read-side view of one shipment as the
// ledger reports it. It carries no derived fields; projection happens
// client-side.
type ShipmentSnapshot struct {
	ID          shipmentid.ID `json:"id"`
	HumanKey    string        `json:"human_key"`
	Origin      string        `json:"origin"`
	Destination string        `json:"destination"`
	Log         []LogEntry    `json:"log"`
}

// ActorRole is the ledger's current role fact for an actor address.
// Role grants are ledger-mutable at any time, so a role must be re-read
// for every authorization decision rather than cached.
type ActorRole struct {
	IsCustomsWorker bool `json:"is_customs_worker"`
}

// OpKind identifies a write operation type.
type OpKind string

const (
	OpCreateShipment OpKind = "create_shipment"
	OpAppendStatus   OpKind = "append_status"
)

// Operation is a write to be submitted to the ledger.
type Operation struct {
	Kind       OpKind        `json:"kind"`
	ShipmentID shipmentid.ID `json:"shipment_id"`
	Actor      string        `json:"actor"`

	// Create fields.
	HumanKey    string `json:"human_key,omitempty"`
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`

	// Append field.
	Status string `json:"status,omitempty"`
}

// PendingWrite is the handle returned by Submit. It identifies a write
// that has been accepted into the ledger's mempool but not yet finalized.
type PendingWrite struct {
	TxHash      string        `json:"tx_hash"`
	Op          OpKind        `json:"op"`
	ShipmentID  shipmentid.ID `json:"shipment_id"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// Receipt reports a finalized write.
type Receipt struct {
	TxHash    string    `json:"tx_hash"`
	BlockTime time.Time `json:"block_time"`
}
