package tsv

import (
	"fmt"
	"io"
	"strconv"

	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/seed"
)

const (
	colPrefix        = "prefix"
	colASPath        = "as_path"
	colTimestamp     = "timestamp"
	colOrigin        = "origin"
	colPrefixID      = "prefix_id"
	colPrefixBlockID = "prefix_block_id"
)

// ReadAnnouncements parses the Announcements input (spec section 6) into
// seed.AnnouncementRecord values, one per row.
func ReadAnnouncements(r io.Reader) ([]seed.AnnouncementRecord, error) {
	cr := newTabReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("tsv: reading announcements header: %w", err)
	}
	col := columnIndex(header)

	prefixIdx, err := col.require(colPrefix)
	if err != nil {
		return nil, err
	}
	asPathIdx, err := col.require(colASPath)
	if err != nil {
		return nil, err
	}
	timestampIdx, err := col.require(colTimestamp)
	if err != nil {
		return nil, err
	}
	originIdx, err := col.require(colOrigin)
	if err != nil {
		return nil, err
	}
	prefixIDIdx, err := col.require(colPrefixID)
	if err != nil {
		return nil, err
	}
	blockIdx, err := col.require(colPrefixBlockID)
	if err != nil {
		return nil, err
	}

	var records []seed.AnnouncementRecord
	row, rowErr := cr.Read()
	for line := 2; rowErr == nil; line++ {
		asPath, err := ParseASList(row[asPathIdx])
		if err != nil {
			return nil, fmt.Errorf("tsv: announcements row %d: %w", line, err)
		}
		timestamp, err := strconv.ParseInt(row[timestampIdx], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tsv: announcements row %d: invalid timestamp %q: %w", line, row[timestampIdx], err)
		}
		origin, err := strconv.ParseUint(row[originIdx], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("tsv: announcements row %d: invalid origin %q: %w", line, row[originIdx], err)
		}
		globalID, err := strconv.ParseUint(row[prefixIDIdx], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("tsv: announcements row %d: invalid prefix_id %q: %w", line, row[prefixIDIdx], err)
		}
		block, err := strconv.ParseUint(row[blockIdx], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("tsv: announcements row %d: invalid prefix_block_id %q: %w", line, row[blockIdx], err)
		}

		records = append(records, seed.AnnouncementRecord{
			PrefixString: row[prefixIdx],
			ASPath:       asPath,
			Timestamp:    timestamp,
			Origin:       rib.ASN(origin),
			GlobalID:     uint32(globalID),
			BlockID:      rib.BlockID(block),
		})

		row, rowErr = cr.Read()
	}
	if rowErr != io.EOF {
		return nil, fmt.Errorf("tsv: reading announcements: %w", rowErr)
	}

	return records, nil
}
