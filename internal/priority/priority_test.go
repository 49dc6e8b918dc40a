package priority

import "testing"

func TestPack_EmptyStateIsZero(t *testing.T) {
	if f := Pack(true, RelOrigin, 0); f != 0 {
		t.Errorf("expected pathLength 0 to pack to 0 regardless of other fields, got %d", f)
	}
}

func TestPack_SeededBeatsRelationshipAndLength(t *testing.T) {
	seeded := Pack(true, RelProvider, 200)
	unseeded := Pack(false, RelOrigin, 1)
	if !(seeded > unseeded) {
		t.Errorf("seeded route must outrank any unseeded route: seeded=%d unseeded=%d", seeded, unseeded)
	}
}

func TestPack_RelationshipBeatsLength(t *testing.T) {
	customer := Pack(false, RelCustomer, 200)
	origin := Pack(false, RelOrigin, 1)
	if !(origin > customer) {
		t.Errorf("origin must outrank customer-learned regardless of length: origin=%d customer=%d", origin, customer)
	}
}

func TestPack_ShorterPathWins(t *testing.T) {
	short := Pack(false, RelCustomer, 2)
	long := Pack(false, RelCustomer, 5)
	if !(short > long) {
		t.Errorf("shorter path must outrank longer path at equal relationship: short=%d long=%d", short, long)
	}
}

func TestUnpack_RoundTrip(t *testing.T) {
	f := Pack(true, RelPeer, 17)
	seeded, rel, length := Unpack(f)
	if !seeded || rel != RelPeer || length != 17 {
		t.Errorf("round trip mismatch: seeded=%v rel=%d length=%d", seeded, rel, length)
	}
}

func TestFingerprint_Empty(t *testing.T) {
	if !Fingerprint(0).Empty() {
		t.Error("zero fingerprint must report Empty")
	}
	if Pack(false, RelCustomer, 1).Empty() {
		t.Error("non-zero fingerprint must not report Empty")
	}
}
