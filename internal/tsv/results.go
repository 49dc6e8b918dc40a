package tsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/topology"
	"github.com/route-beacon/bgpextrapolate/internal/trace"
)

// ResultRow is one row of the Results output (spec section 6): a traced
// (AS, prefix) pair together with the static attributes of the
// announcement that cell ultimately resolved to.
type ResultRow struct {
	ASN           rib.ASN
	Prefix        string
	ASPath        []rib.ASN
	Timestamp     int64
	Origin        rib.ASN
	PrefixID      uint32
	BlockID       rib.BlockID
	PrefixBlockID rib.BlockID
}

var resultsHeader = []string{
	"prefix", "as_path", "timestamp", "origin", "prefix_id", "block_id", "prefix_block_id",
}

// WriteResults serializes rows in the Results output format. Callers are
// expected to have already skipped empty cells (spec section 6: "empty
// cells are not emitted"); this function writes exactly the rows given.
func WriteResults(w io.Writer, rows []ResultRow) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := cw.Write(resultsHeader); err != nil {
		return fmt.Errorf("tsv: writing results header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Prefix,
			FormatASList(row.ASPath),
			strconv.FormatInt(row.Timestamp, 10),
			strconv.FormatUint(uint64(row.Origin), 10),
			strconv.FormatUint(uint64(row.PrefixID), 10),
			strconv.FormatUint(uint64(row.BlockID), 10),
			strconv.FormatUint(uint64(row.PrefixBlockID), 10),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("tsv: writing results row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("tsv: flushing results: %w", err)
	}
	return nil
}

// BuildResults traces every (AS, prefix block) cell in the matrix and
// collects the non-empty ones into ResultRow values, resolving each
// cell's static announcement attributes from pool. The caller passes in
// a Tracer bound to the same topology and matrix.
//
// Per spec section 7, every traceback error is recoverable locally: a
// cycle or a broken chain still leaves Trace's partial, truncated path
// usable, so that row is emitted with a warning instead of aborting the
// whole pass. Only an error with no path at all (the AS itself is
// unknown to the topology, which cannot happen for an id this loop
// produced) fails the build.
func BuildResults(topo *topology.Topology, matrix rib.Matrix, pool *rib.StaticPool, tracer *trace.Tracer, logger *zap.Logger) ([]ResultRow, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var rows []ResultRow
	for id := 0; id < matrix.NumAS(); id++ {
		asid := rib.ASID(id)
		asn := topo.ASNOf(asid)
		for b := 0; b < matrix.NumBlocks(); b++ {
			block := rib.BlockID(b)
			cell := matrix.Get(asid, block)
			if cell.Empty() {
				continue
			}
			static := pool.Get(cell.StaticIndex)

			res, err := tracer.Trace(asn, block)
			if err != nil {
				if len(res.Path) == 0 {
					return nil, fmt.Errorf("tsv: tracing (AS %d, block %d): %w", asn, block, err)
				}
				logger.Warn("tsv: traceback truncated, emitting partial path",
					zap.Uint32("asn", uint32(asn)), zap.Uint32("block", uint32(block)), zap.Error(err))
			}

			rows = append(rows, ResultRow{
				ASN:           asn,
				Prefix:        static.PrefixString,
				ASPath:        res.Path,
				Timestamp:     static.Timestamp,
				Origin:        static.OriginASN,
				PrefixID:      static.GlobalID,
				BlockID:       0,
				PrefixBlockID: static.BlockID,
			})
		}
	}
	return rows, nil
}
