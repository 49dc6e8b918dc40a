package tsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/topology"
)

// relationship column names, matched against the input's header row.
const (
	colASN             = "asn"
	colPropagationRank = "propagation_rank"
	colProviders       = "providers"
	colPeers           = "peers"
	colCustomers       = "customers"
	colStubs           = "stubs"
	colStub            = "stub"
)

// ReadRelationships parses the Relationships input (spec section 6) into
// topology.ASRecord values, one per row. Column order is taken from the
// header row rather than assumed fixed, the way the teacher's ingestion
// pipeline resolves BMP peer fields by name rather than position.
func ReadRelationships(r io.Reader) ([]topology.ASRecord, error) {
	cr := newTabReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("tsv: reading relationships header: %w", err)
	}
	col := columnIndex(header)

	asnIdx, err := col.require(colASN)
	if err != nil {
		return nil, err
	}
	rankIdx, err := col.require(colPropagationRank)
	if err != nil {
		return nil, err
	}
	providersIdx, err := col.require(colProviders)
	if err != nil {
		return nil, err
	}
	peersIdx, err := col.require(colPeers)
	if err != nil {
		return nil, err
	}
	customersIdx, err := col.require(colCustomers)
	if err != nil {
		return nil, err
	}
	stubsIdx, err := col.require(colStubs)
	if err != nil {
		return nil, err
	}
	stubIdx, err := col.require(colStub)
	if err != nil {
		return nil, err
	}

	var records []topology.ASRecord
	row, rowErr := cr.Read()
	for line := 2; rowErr == nil; line++ {
		asn, err := strconv.ParseUint(row[asnIdx], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("tsv: relationships row %d: invalid asn %q: %w", line, row[asnIdx], err)
		}
		rank, err := strconv.ParseInt(row[rankIdx], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("tsv: relationships row %d: invalid propagation_rank %q: %w", line, row[rankIdx], err)
		}
		providers, err := ParseASList(row[providersIdx])
		if err != nil {
			return nil, fmt.Errorf("tsv: relationships row %d: %w", line, err)
		}
		peers, err := ParseASList(row[peersIdx])
		if err != nil {
			return nil, fmt.Errorf("tsv: relationships row %d: %w", line, err)
		}
		customers, err := ParseASList(row[customersIdx])
		if err != nil {
			return nil, fmt.Errorf("tsv: relationships row %d: %w", line, err)
		}
		stubs, err := ParseASList(row[stubsIdx])
		if err != nil {
			return nil, fmt.Errorf("tsv: relationships row %d: %w", line, err)
		}
		stub, err := strconv.ParseBool(row[stubIdx])
		if err != nil {
			return nil, fmt.Errorf("tsv: relationships row %d: invalid stub %q: %w", line, row[stubIdx], err)
		}

		records = append(records, topology.ASRecord{
			ASN:             rib.ASN(asn),
			PropagationRank: int32(rank),
			Providers:       providers,
			Peers:           peers,
			Customers:       customers,
			Stubs:           stubs,
			IsStub:          stub,
		})

		row, rowErr = cr.Read()
	}
	if rowErr != io.EOF {
		return nil, fmt.Errorf("tsv: reading relationships: %w", rowErr)
	}

	return records, nil
}

// newTabReader builds a csv.Reader configured for this package's
// tab-delimited inputs.
func newTabReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	return cr
}

type columnSet map[string]int

func columnIndex(header []string) columnSet {
	m := make(columnSet, len(header))
	for i, h := range header {
		m[h] = i
	}
	return m
}

func (c columnSet) require(name string) (int, error) {
	i, ok := c[name]
	if !ok {
		return 0, fmt.Errorf("tsv: input missing required column %q", name)
	}
	return i, nil
}
