package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/seed"
)

type fakeSink struct {
	mu      chan struct{}
	batches [][]seed.AnnouncementRecord
	err     error
}

func newFakeSink() *fakeSink {
	return &fakeSink{mu: make(chan struct{}, 64)}
}

func (f *fakeSink) SeedAll(recs []seed.AnnouncementRecord) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, recs)
	f.mu <- struct{}{}
	return nil
}

func mustRecord(t *testing.T, m message) *kgo.Record {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &kgo.Record{Topic: "announcements", Value: b}
}

// mustFetched builds the Fetched value Consumer.Run would have produced
// for m, decoding it the same way.
func mustFetched(t *testing.T, m message) Fetched {
	t.Helper()
	rec := mustRecord(t, m)
	ann, err := decode(rec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return Fetched{Record: rec, Announcement: ann}
}

func TestPipeline_FlushesOnBatchSize(t *testing.T) {
	sink := newFakeSink()
	p := NewPipeline(sink, 2, 60_000, nil)

	records := make(chan []Fetched, 4)
	flushed := make(chan []*kgo.Record, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx, records, flushed)
		close(done)
	}()

	records <- []Fetched{
		mustFetched(t, message{Prefix: "10.0.0.0/8", ASPath: []rib.ASN{1}, Timestamp: 1, Origin: 1, PrefixID: 1, PrefixBlockID: 0}),
		mustFetched(t, message{Prefix: "10.0.0.0/8", ASPath: []rib.ASN{2, 1}, Timestamp: 1, Origin: 1, PrefixID: 1, PrefixBlockID: 0}),
	}

	select {
	case <-sink.mu:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch flush")
	}

	select {
	case recs := <-flushed:
		if len(recs) != 2 {
			t.Errorf("expected 2 flushed kafka records, got %d", len(recs))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flushed records")
	}

	if len(sink.batches) != 1 || len(sink.batches[0]) != 2 {
		t.Fatalf("expected one batch of 2 announcements, got %+v", sink.batches)
	}
}

func TestPipeline_FlushesOnTicker(t *testing.T) {
	sink := newFakeSink()
	p := NewPipeline(sink, 100, 20, nil) // 20ms flush interval, batch size never reached

	records := make(chan []Fetched, 1)
	flushed := make(chan []*kgo.Record, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx, records, flushed)
		close(done)
	}()

	records <- []Fetched{
		mustFetched(t, message{Prefix: "10.0.0.0/8", ASPath: []rib.ASN{1}, Timestamp: 1, Origin: 1, PrefixID: 1, PrefixBlockID: 0}),
	}

	select {
	case <-sink.mu:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ticker-driven flush")
	}
	if len(sink.batches) != 1 || len(sink.batches[0]) != 1 {
		t.Fatalf("expected one batch of 1 announcement, got %+v", sink.batches)
	}
}

func TestPipeline_SeedFailureRetainsBatchForRetry(t *testing.T) {
	sink := newFakeSink()
	sink.err = context.DeadlineExceeded
	p := NewPipeline(sink, 1, 60_000, nil)

	records := make(chan []Fetched, 1)
	flushed := make(chan []*kgo.Record, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, records, flushed)
		close(done)
	}()

	records <- []Fetched{
		mustFetched(t, message{Prefix: "10.0.0.0/8", ASPath: []rib.ASN{1}, Timestamp: 1, Origin: 1, PrefixID: 1, PrefixBlockID: 0}),
	}

	select {
	case <-flushed:
		t.Fatal("expected no offset commit when SeedAll fails")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	<-done
}

func TestPipeline_DropsUndecodableRecordButKeepsBatchMoving(t *testing.T) {
	sink := newFakeSink()
	p := NewPipeline(sink, 1, 60_000, nil)

	records := make(chan []Fetched, 1)
	flushed := make(chan []*kgo.Record, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx, records, flushed)
		close(done)
	}()

	badRec := &kgo.Record{Topic: "announcements", Value: []byte("not json")}
	_, decodeErr := decode(badRec)
	goodFetched := mustFetched(t, message{Prefix: "10.0.0.0/8", ASPath: []rib.ASN{1}, Timestamp: 1, Origin: 1, PrefixID: 1, PrefixBlockID: 0})

	records <- []Fetched{
		{Record: badRec, DecodeErr: decodeErr},
		goodFetched,
	}

	select {
	case <-sink.mu:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch flush")
	}

	if len(sink.batches) != 1 || len(sink.batches[0]) != 1 {
		t.Fatalf("expected the undecodable record to be dropped from the seeded batch, got %+v", sink.batches)
	}

	select {
	case recs := <-flushed:
		if len(recs) != 2 {
			t.Errorf("expected both the bad and good kafka records committed, got %d", len(recs))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flushed records")
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	rec := &kgo.Record{Topic: "announcements", Value: []byte("not json")}
	if _, err := decode(rec); err == nil {
		t.Fatal("expected decode error for invalid JSON")
	}
}

func TestDecode_Valid(t *testing.T) {
	rec := mustRecord(t, message{Prefix: "10.0.0.0/8", ASPath: []rib.ASN{2, 1}, Timestamp: 100, Origin: 1, PrefixID: 7, PrefixBlockID: 0})
	ann, err := decode(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ann.PrefixString != "10.0.0.0/8" || ann.Origin != 1 || len(ann.ASPath) != 2 {
		t.Errorf("unexpected decoded record: %+v", ann)
	}
}
