// Package shipmentid derives fixed-width shipment identifiers from
// human-readable keys.
//
// An ID is the keccak256 digest of the UTF-8 bytes of the human key,
// matching the derivation the SeeChain contract expects for its bytes32
// shipment ids. The derivation is one-way and must stay bit-exact so ids
// remain stable across every client that talks to the same ledger.
package shipmentid

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Size is the identifier width in bytes.
const Size = 32

// ID is a ledger shipment identifier (bytes32).
type ID [Size]byte

// Derive computes the ID for a human-readable shipment key.
func Derive(humanKey string) ID {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(humanKey))

	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

// String returns the 0x-prefixed lowercase hex form.
func (id ID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// IsZero reports whether the id is all zero bytes.
func (id ID) IsZero() bool {
	return id == ID{}
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Parse decodes a hex identifier, with or without the 0x prefix.
func Parse(s string) (ID, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse shipment id: %w", err)
	}
	if len(raw) != Size {
		return ID{}, fmt.Errorf("parse shipment id: got %d bytes, want %d", len(raw), Size)
	}

	var id ID
	copy(id[:], raw)
	return id, nil
}
