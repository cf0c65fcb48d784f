package shipmentid_test

import (
	"testing"

	"github.com/seechain/seechain/pkg/shipmentid"
)

// Keccak256 of the empty string, the classic known-answer vector and
// the digest Ethereum tooling produces for id("").
const emptyKeccak = "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"

func TestDerive_knownVector(t *testing.T) {
	id := shipmentid.Derive("")
	if id.String() != emptyKeccak {
		t.Errorf("Derive(\"\"): got %s, want %s", id, emptyKeccak)
	}
}

func TestDerive_deterministic(t *testing.T) {
	a := shipmentid.Derive("SHP001")
	b := shipmentid.Derive("SHP001")
	if a != b {
		t.Errorf("derivation not deterministic: %s != %s", a, b)
	}
}

func TestDerive_distinctKeys(t *testing.T) {
	// Two shipments identical in every field except the human key must
	// land under different ids.
	a := shipmentid.Derive("SHP001")
	b := shipmentid.Derive("SHP002")
	if a == b {
		t.Errorf("distinct keys collided: %s", a)
	}
	if a.IsZero() || b.IsZero() {
		t.Error("derivation produced a zero id")
	}
}

func TestParse_roundTrip(t *testing.T) {
	id := shipmentid.Derive("SHP001")

	parsed, err := shipmentid.Parse(id.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != id {
		t.Errorf("round trip: got %s, want %s", parsed, id)
	}

	// Without the 0x prefix.
	parsed, err = shipmentid.Parse(id.String()[2:])
	if err != nil {
		t.Fatal(err)
	}
	if parsed != id {
		t.Errorf("round trip without prefix: got %s, want %s", parsed, id)
	}
}

func TestParse_rejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"0x",
		"0xzz",
		"0xdeadbeef", // too short
		emptyKeccak + "00",
	}
	for _, in := range cases {
		if _, err := shipmentid.Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", in)
		}
	}
}
