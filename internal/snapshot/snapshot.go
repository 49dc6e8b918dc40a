// Package snapshot saves and restores a run's full input/output byte
// streams (the Relationships and Results TSVs) as one zstd-compressed
// file, the way the teacher's history writer compresses raw BMP payload
// bytes before persisting them.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// magic identifies a snapshot file and doubles as a format version.
var magic = [4]byte{'b', 'g', 'p', 1}

// Snapshot holds the raw bytes of one run's topology and results TSVs,
// bundled together so a run can be reproduced or re-traced offline
// without re-reading the original input files.
type Snapshot struct {
	RelationshipsTSV []byte
	ResultsTSV       []byte
}

// Write zstd-compresses s and writes it to w. level is a zstd compression
// level 1-22; 0 selects the encoder's default.
func Write(w io.Writer, s Snapshot, level int) error {
	var body bytes.Buffer
	body.Write(magic[:])
	if err := writeSection(&body, s.RelationshipsTSV); err != nil {
		return fmt.Errorf("snapshot: writing relationships section: %w", err)
	}
	if err := writeSection(&body, s.ResultsTSV); err != nil {
		return fmt.Errorf("snapshot: writing results section: %w", err)
	}

	opts := []zstd.EOption{}
	if level > 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}
	enc, err := zstd.NewWriter(w, opts...)
	if err != nil {
		return fmt.Errorf("snapshot: creating zstd encoder: %w", err)
	}
	if _, err := enc.Write(body.Bytes()); err != nil {
		enc.Close()
		return fmt.Errorf("snapshot: compressing snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("snapshot: closing zstd encoder: %w", err)
	}
	return nil
}

// Read decompresses and parses a snapshot previously written by Write.
func Read(r io.Reader) (Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: creating zstd decoder: %w", err)
	}
	defer dec.Close()

	body, err := io.ReadAll(dec)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: decompressing snapshot: %w", err)
	}

	if len(body) < 4 || [4]byte(body[:4]) != magic {
		return Snapshot{}, fmt.Errorf("snapshot: bad magic, not a snapshot file")
	}
	rest := body[4:]

	relationships, rest, err := readSection(rest)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: reading relationships section: %w", err)
	}
	results, rest, err := readSection(rest)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: reading results section: %w", err)
	}
	if len(rest) != 0 {
		return Snapshot{}, fmt.Errorf("snapshot: %d trailing bytes after results section", len(rest))
	}

	return Snapshot{RelationshipsTSV: relationships, ResultsTSV: results}, nil
}

func writeSection(buf *bytes.Buffer, data []byte) error {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(data)))
	buf.Write(lenBuf[:n])
	buf.Write(data)
	return nil
}

func readSection(b []byte) (section []byte, rest []byte, err error) {
	length, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, nil, fmt.Errorf("malformed section length")
	}
	b = b[n:]
	if uint64(len(b)) < length {
		return nil, nil, fmt.Errorf("section length %d exceeds remaining %d bytes", length, len(b))
	}
	return b[:length], b[length:], nil
}
