package trace

import (
	"testing"

	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/topology"
)

func buildTopo(t *testing.T, recs []topology.ASRecord, opts topology.BuildOptions) *topology.Topology {
	t.Helper()
	topo, err := topology.Build(recs, opts, nil)
	if err != nil {
		t.Fatalf("topology.Build: %v", err)
	}
	return topo
}

func TestTrace_OriginOnly(t *testing.T) {
	topo := buildTopo(t, []topology.ASRecord{{ASN: 1}}, topology.BuildOptions{})
	m := rib.NewRowMajor(topo.NumAS(), 1)
	id, _ := topo.IDOf(1)
	cell := m.Get(id, 0)
	cell.ReceivedFromASN = 1
	cell.PathLength = 1
	cell.Seeded = true

	tr := New(topo, m, nil)
	res, err := tr.Trace(1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Path) != 1 || res.Path[0] != 1 {
		t.Errorf("expected path [1], got %v", res.Path)
	}
}

func TestTrace_MultiHop(t *testing.T) {
	recs := []topology.ASRecord{
		{ASN: 1, Providers: []rib.ASN{2}},
		{ASN: 2, Customers: []rib.ASN{1}, Providers: []rib.ASN{3}},
		{ASN: 3, Customers: []rib.ASN{2}},
	}
	topo := buildTopo(t, recs, topology.BuildOptions{})
	m := rib.NewRowMajor(topo.NumAS(), 1)

	id1, _ := topo.IDOf(1)
	id2, _ := topo.IDOf(2)
	id3, _ := topo.IDOf(3)

	c1 := m.Get(id1, 0)
	c1.ReceivedFromASN, c1.PathLength, c1.Seeded = 1, 1, true

	c2 := m.Get(id2, 0)
	c2.ReceivedFromASN, c2.PathLength, c2.Relationship = 1, 2, 2

	c3 := m.Get(id3, 0)
	c3.ReceivedFromASN, c3.PathLength, c3.Relationship = 2, 3, 2

	tr := New(topo, m, nil)
	res, err := tr.Trace(3, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []rib.ASN{3, 2, 1}
	if len(res.Path) != len(want) {
		t.Fatalf("expected path %v, got %v", want, res.Path)
	}
	for i := range want {
		if res.Path[i] != want[i] {
			t.Errorf("path[%d] = %d, want %d (full: %v)", i, res.Path[i], want[i], res.Path)
		}
	}
}

func TestTrace_UnknownAS(t *testing.T) {
	topo := buildTopo(t, []topology.ASRecord{{ASN: 1}}, topology.BuildOptions{})
	m := rib.NewRowMajor(topo.NumAS(), 1)
	tr := New(topo, m, nil)

	if _, err := tr.Trace(99, 0); err == nil {
		t.Fatal("expected error for unknown AS")
	}
}

func TestTrace_NoRoute(t *testing.T) {
	topo := buildTopo(t, []topology.ASRecord{{ASN: 1}}, topology.BuildOptions{})
	m := rib.NewRowMajor(topo.NumAS(), 1)
	tr := New(topo, m, nil)

	if _, err := tr.Trace(1, 0); err == nil {
		t.Fatal("expected error for empty cell")
	}
}

func TestTrace_CycleDetectedAndTruncated(t *testing.T) {
	recs := []topology.ASRecord{
		{ASN: 1, Peers: []rib.ASN{2}},
		{ASN: 2, Peers: []rib.ASN{1}},
	}
	topo := buildTopo(t, recs, topology.BuildOptions{})
	m := rib.NewRowMajor(topo.NumAS(), 1)

	id1, _ := topo.IDOf(1)
	id2, _ := topo.IDOf(2)

	// Malformed RIB: 1 claims to have received from 2, 2 claims to have
	// received from 1. Neither is the origin.
	c1 := m.Get(id1, 0)
	c1.ReceivedFromASN, c1.PathLength, c1.Relationship = 2, 2, 1

	c2 := m.Get(id2, 0)
	c2.ReceivedFromASN, c2.PathLength, c2.Relationship = 1, 2, 1

	tr := New(topo, m, nil)
	res, err := tr.Trace(1, 0)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if len(res.Path) == 0 {
		t.Error("expected a partial, truncated path even on cycle failure")
	}
}

func TestTrace_OutOfGraphStubTerminates(t *testing.T) {
	recs := []topology.ASRecord{
		{ASN: 100, Providers: []rib.ASN{200}, IsStub: true},
		{ASN: 200, Customers: []rib.ASN{100}, Stubs: []rib.ASN{100}},
	}
	topo := buildTopo(t, recs, topology.BuildOptions{ElideStubs: true})
	m := rib.NewRowMajor(topo.NumAS(), 1)

	id200, _ := topo.IDOf(200)
	cell := m.Get(id200, 0)
	cell.ReceivedFromASN = 100
	cell.PathLength = 2
	cell.Relationship = 2

	tr := New(topo, m, nil)
	res, err := tr.Trace(200, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []rib.ASN{200, 100}
	if len(res.Path) != 2 || res.Path[0] != want[0] || res.Path[1] != want[1] {
		t.Errorf("expected path %v, got %v", want, res.Path)
	}
}
