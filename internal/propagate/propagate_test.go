package propagate

import (
	"testing"

	"github.com/route-beacon/bgpextrapolate/internal/policy"
	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/seed"
	"github.com/route-beacon/bgpextrapolate/internal/topology"
)

func buildGraph(t *testing.T, recs []topology.ASRecord, opts topology.BuildOptions, numBlocks int) *Graph {
	t.Helper()
	topo, err := topology.Build(recs, opts, nil)
	if err != nil {
		t.Fatalf("topology.Build: %v", err)
	}
	return &Graph{
		Topo:   topo,
		Matrix: rib.NewRowMajor(topo.NumAS(), numBlocks),
		Pool:   rib.NewStaticPool(0),
	}
}

// TestPropagate_BasicUphill matches spec scenario 1: a stub customer's
// announcement propagates up through a single provider chain with
// nothing else to block it.
func TestPropagate_BasicUphill(t *testing.T) {
	recs := []topology.ASRecord{
		{ASN: 1, PropagationRank: 0, Providers: []rib.ASN{2}},
		{ASN: 2, PropagationRank: 1, Customers: []rib.ASN{1}, Providers: []rib.ASN{3}},
		{ASN: 3, PropagationRank: 2, Customers: []rib.ASN{2}},
	}
	g := buildGraph(t, recs, topology.BuildOptions{}, 1)

	s := seed.New(g.Topo, g.Matrix, g.Pool, seed.Config{}, 1, nil)
	if err := s.Seed(seed.AnnouncementRecord{ASPath: []rib.ASN{1}, BlockID: 0, Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	pol := NewGaoRexfordPolicy(Config{}, 1)
	NewPropagator(g, pol, nil).Run()

	id1, _ := g.Topo.IDOf(1)
	id2, _ := g.Topo.IDOf(2)
	id3, _ := g.Topo.IDOf(3)

	if got := g.Matrix.Get(id1, 0).PathLength; got != 1 {
		t.Errorf("AS1 origin path length = %d, want 1", got)
	}
	cell2 := g.Matrix.Get(id2, 0)
	if cell2.Empty() || cell2.ReceivedFromASN != 1 {
		t.Errorf("AS2 expected to learn from AS1, got %+v", cell2)
	}
	cell3 := g.Matrix.Get(id3, 0)
	if cell3.Empty() || cell3.ReceivedFromASN != 2 {
		t.Errorf("AS3 expected to learn from AS2, got %+v", cell3)
	}
}

// TestPropagate_PeerBlocksUphill matches spec scenario 2: a route learned
// over a peer link must not be re-exported to that peer's own providers.
func TestPropagate_PeerBlocksUphill(t *testing.T) {
	// 1 -- peer -- 2 -- provider -- 3
	recs := []topology.ASRecord{
		{ASN: 1, PropagationRank: 0, Peers: []rib.ASN{2}},
		{ASN: 2, PropagationRank: 0, Peers: []rib.ASN{1}, Providers: []rib.ASN{3}},
		{ASN: 3, PropagationRank: 1, Customers: []rib.ASN{2}},
	}
	g := buildGraph(t, recs, topology.BuildOptions{}, 1)

	s := seed.New(g.Topo, g.Matrix, g.Pool, seed.Config{}, 1, nil)
	if err := s.Seed(seed.AnnouncementRecord{ASPath: []rib.ASN{1}, BlockID: 0, Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	pol := NewGaoRexfordPolicy(Config{}, 1)
	NewPropagator(g, pol, nil).Run()

	id2, _ := g.Topo.IDOf(2)
	id3, _ := g.Topo.IDOf(3)

	cell2 := g.Matrix.Get(id2, 0)
	if cell2.Empty() || cell2.ReceivedFromASN != 1 {
		t.Fatalf("AS2 expected to learn AS1's route over the peer link, got %+v", cell2)
	}
	if cell3 := g.Matrix.Get(id3, 0); !cell3.Empty() {
		t.Errorf("AS3 must not receive a peer-learned route re-exported up, got %+v", cell3)
	}
}

// TestPropagate_ShorterWinsDiamond matches spec scenario 3: in a diamond
// with two customer paths to the same prefix, the shorter customer path
// wins at the top, with a deterministic lowest-ASN tie-break available
// for equal-length duplicates.
func TestPropagate_ShorterWinsDiamond(t *testing.T) {
	// 10 and 20 are both customers of 99; 10 also has its own customer 5,
	// which originates the prefix, giving 99 a 2-hop path via 10 and
	// (separately seeded) a 1-hop path directly from 20.
	recs := []topology.ASRecord{
		{ASN: 99, PropagationRank: 2, Customers: []rib.ASN{10, 20}},
		{ASN: 10, PropagationRank: 1, Providers: []rib.ASN{99}, Customers: []rib.ASN{5}},
		{ASN: 5, PropagationRank: 0, Providers: []rib.ASN{10}},
		{ASN: 20, PropagationRank: 0, Providers: []rib.ASN{99}},
	}
	g := buildGraph(t, recs, topology.BuildOptions{}, 1)

	s := seed.New(g.Topo, g.Matrix, g.Pool, seed.Config{}, 1, nil)
	if err := s.Seed(seed.AnnouncementRecord{ASPath: []rib.ASN{5}, BlockID: 0, Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Seed(seed.AnnouncementRecord{ASPath: []rib.ASN{20}, BlockID: 0, Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	pol := NewGaoRexfordPolicy(Config{Tiebreak: policy.TiebreakLowestASN}, 1)
	NewPropagator(g, pol, nil).Run()

	id99, _ := g.Topo.IDOf(99)
	cell99 := g.Matrix.Get(id99, 0)
	if cell99.Empty() {
		t.Fatal("AS99 expected a route")
	}
	if cell99.ReceivedFromASN != 20 {
		t.Errorf("AS99 expected the shorter 1-hop route from AS20, got ReceivedFromASN=%d pathLength=%d",
			cell99.ReceivedFromASN, cell99.PathLength)
	}
	if cell99.PathLength != 2 {
		t.Errorf("AS99 expected path length 2 (1 hop to AS20 + 1), got %d", cell99.PathLength)
	}
}

// TestPropagate_SeededReceiverNeverOverwritten ensures a seeded cell is
// never clobbered by a propagated import even when the propagated
// candidate would otherwise compare higher.
func TestPropagate_SeededReceiverNeverOverwritten(t *testing.T) {
	recs := []topology.ASRecord{
		{ASN: 1, PropagationRank: 0, Providers: []rib.ASN{2}},
		{ASN: 2, PropagationRank: 1, Customers: []rib.ASN{1}},
	}
	g := buildGraph(t, recs, topology.BuildOptions{}, 1)

	s := seed.New(g.Topo, g.Matrix, g.Pool, seed.Config{}, 1, nil)
	// Seed AS2 directly as an origin (best possible relationship/length),
	// and also seed AS1 so propagation has something to offer AS2.
	if err := s.Seed(seed.AnnouncementRecord{ASPath: []rib.ASN{2}, BlockID: 0, Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Seed(seed.AnnouncementRecord{ASPath: []rib.ASN{1}, BlockID: 0, Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	id2, _ := g.Topo.IDOf(2)
	before := *g.Matrix.Get(id2, 0)

	pol := NewGaoRexfordPolicy(Config{}, 1)
	NewPropagator(g, pol, nil).Run()

	after := g.Matrix.Get(id2, 0)
	if *after != before {
		t.Errorf("seeded cell must not change during propagation: before=%+v after=%+v", before, *after)
	}
}

// TestPropagate_PathTooLongRejected ensures a cell whose imported path
// would exceed MaxPathLength is rejected rather than silently wrapped.
func TestPropagate_PathTooLongRejected(t *testing.T) {
	recs := []topology.ASRecord{
		{ASN: 1, PropagationRank: 0, Providers: []rib.ASN{2}},
		{ASN: 2, PropagationRank: 1, Customers: []rib.ASN{1}},
	}
	g := buildGraph(t, recs, topology.BuildOptions{}, 1)

	id1, _ := g.Topo.IDOf(1)
	idx := g.Pool.Add(rib.StaticAnnouncement{Timestamp: 1})
	cell1 := g.Matrix.Get(id1, 0)
	cell1.Seeded = true
	cell1.StaticIndex = idx
	cell1.PathLength = 254
	cell1.Relationship = 2

	pol := NewGaoRexfordPolicy(Config{}, 1)
	NewPropagator(g, pol, nil).Run()

	id2, _ := g.Topo.IDOf(2)
	if cell2 := g.Matrix.Get(id2, 0); !cell2.Empty() {
		t.Errorf("expected AS2 to reject an overflowing path, got %+v", cell2)
	}
	if pol.Stats.PathTooLong == 0 {
		t.Errorf("expected PathTooLong stat to be incremented")
	}
}
