// Package seed implements the seeding algorithm (spec section 4.4): it
// walks each observed AS_PATH, assigns a priority to each hop, and writes
// seeded RIB entries while applying inter-announcement tie-breaking for
// duplicates.
package seed

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpextrapolate/internal/policy"
	"github.com/route-beacon/bgpextrapolate/internal/priority"
	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/topology"
)

// Seeder writes ground-truth announcements into a Local RIB Matrix before
// propagation runs.
type Seeder struct {
	topo   *topology.Topology
	matrix rib.Matrix
	pool   *rib.StaticPool
	cfg    Config
	rng    *rand.Rand
	logger *zap.Logger
	Stats  Stats
}

// New builds a Seeder. rngSeed fixes the deterministic RNG used for the
// random tie-break (spec section 4.5's determinism note applies equally
// to seeding's random tie-break).
func New(topo *topology.Topology, matrix rib.Matrix, pool *rib.StaticPool, cfg Config, rngSeed int64, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{
		topo:   topo,
		matrix: matrix,
		pool:   pool,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(rngSeed)),
		logger: logger,
	}
}

// Seed walks one observed AS_PATH and writes seeded cells for each hop
// (or only the origin, under OriginOnly), per spec section 4.4.
func (s *Seeder) Seed(rec AnnouncementRecord) error {
	if int(rec.BlockID) >= s.matrix.NumBlocks() {
		s.Stats.Overflow++
		return fmt.Errorf("seed: block_id %d exceeds RIB width %d, rejecting announcement for %s",
			rec.BlockID, s.matrix.NumBlocks(), rec.PrefixString)
	}

	n := len(rec.ASPath)
	if n == 0 {
		s.Stats.EmptyPaths++
		return nil
	}

	staticIdx := s.pool.Add(rib.StaticAnnouncement{
		OriginASN:    rec.Origin,
		GlobalID:     rec.GlobalID,
		BlockID:      rec.BlockID,
		Timestamp:    rec.Timestamp,
		PrefixString: rec.PrefixString,
	})

	endIndex := 0
	if s.cfg.OriginOnly {
		endIndex = n - 1
	}
	onlyHop := s.cfg.OriginOnly || n == 1

	lastSeededASN := rec.Origin

	for i := n - 1; i >= endIndex; i-- {
		asn := rec.ASPath[i]
		id, known := s.topo.IDOf(asn)

		if !known {
			if provID, isStub := s.topo.StubProvider(asn); isStub && onlyHop {
				s.Stats.StubWrites++
				s.acceptOverwrite(provID, rec.BlockID, cell{
					receivedFrom: asn,
					staticIdx:    staticIdx,
					relationship: priority.RelCustomer,
					pathLength:   2,
				})
				lastSeededASN = asn
				continue
			}
			s.Stats.UnknownASN++
			s.logger.Debug("seed: AS_PATH hop references unmodeled ASN, skipping",
				zap.Uint32("asn", uint32(asn)))
			continue
		}

		if i < n-1 && rec.ASPath[i] == rec.ASPath[i+1] {
			s.Stats.Prepends++
			continue
		}

		pathLength := n - i
		if pathLength > priority.MaxPathLength {
			s.Stats.PathTooLong++
			break
		}

		var relationship uint8
		if i == n-1 {
			relationship = priority.RelOrigin
		} else {
			sender := rec.ASPath[i+1]
			if class, ok := s.topo.RelationshipClass(sender, asn); ok {
				relationship = class
			} else {
				s.Stats.BrokenRelation++
				relationship = priority.RelBroken
			}
		}

		var receivedFrom rib.ASN
		switch {
		case i == n-1:
			receivedFrom = asn
		default:
			sender := rec.ASPath[i+1]
			if _, ok := s.topo.IDOf(sender); ok {
				receivedFrom = sender
			} else {
				receivedFrom = lastSeededASN
			}
		}

		candidate := cell{
			receivedFrom: receivedFrom,
			staticIdx:    staticIdx,
			relationship: relationship,
			pathLength:   uint8(pathLength),
		}

		if s.shouldAccept(id, rec.BlockID, rec.Timestamp, candidate) {
			s.acceptOverwrite(id, rec.BlockID, candidate)
			lastSeededASN = asn
		} else {
			s.Stats.Rejected++
		}
	}

	return nil
}

// cell is the write payload for one accepted hop.
type cell struct {
	receivedFrom rib.ASN
	staticIdx    uint32
	relationship uint8
	pathLength   uint8
}

func (s *Seeder) acceptOverwrite(id rib.ASID, block rib.BlockID, c cell) {
	target := s.matrix.Get(id, block)
	target.ReceivedFromASN = c.receivedFrom
	target.StaticIndex = c.staticIdx
	target.Relationship = c.relationship
	target.PathLength = c.pathLength
	target.Seeded = true
	s.Stats.Seeded++
}

// shouldAccept applies the seeding tie-break of spec section 4.4 step 6
// against whatever already occupies the target cell.
func (s *Seeder) shouldAccept(id rib.ASID, block rib.BlockID, newTS int64, candidate cell) bool {
	current := s.matrix.Get(id, block)
	if current.Empty() {
		return true
	}
	currentTS := s.pool.Get(current.StaticIndex).Timestamp

	switch s.cfg.TimestampComparison {
	case policy.TimestampPreferNewer:
		if newTS > currentTS {
			return false
		}
		if newTS < currentTS {
			return true
		}
	case policy.TimestampPreferOlder:
		if newTS < currentTS {
			return false
		}
		if newTS > currentTS {
			return true
		}
	case policy.TimestampDisabled:
		// fall through to relationship/length comparison unconditionally
	}

	if current.Relationship > candidate.relationship {
		return false
	}
	if current.Relationship < candidate.relationship {
		return true
	}
	if current.PathLength < candidate.pathLength {
		return false
	}
	if current.PathLength > candidate.pathLength {
		return true
	}

	// Fully equal on timestamp (or disabled), relationship, and path
	// length: final tie-break.
	switch s.cfg.Tiebreak {
	case policy.TiebreakRandom:
		return s.rng.Intn(2) == 0
	case policy.TiebreakLowestASN:
		return !(current.ReceivedFromASN < candidate.receivedFrom)
	default:
		return false
	}
}
