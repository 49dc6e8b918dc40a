package ingest

import (
	"context"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/route-beacon/bgpextrapolate/internal/seed"
)

// Sink is the subset of engine.Engine the pipeline needs: a batched
// seed call. Satisfied directly by *engine.Engine.
type Sink interface {
	SeedAll(recs []seed.AnnouncementRecord) error
}

// Pipeline batches decoded announcement messages and flushes them into
// a Sink on a size/interval trigger, mirroring the teacher's
// batch-then-flush-then-commit pipeline shape.
type Pipeline struct {
	sink          Sink
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger
}

// NewPipeline builds a Pipeline. flushIntervalMs bounds how long a
// partial batch can sit before being flushed anyway.
func NewPipeline(sink Sink, batchSize, flushIntervalMs int, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Pipeline{
		sink:          sink,
		batchSize:     batchSize,
		flushInterval: time.Duration(flushIntervalMs) * time.Millisecond,
		logger:        logger,
	}
}

// Run batches already-decoded announcements from the records channel
// until ctx is cancelled or the channel is closed, forwarding
// successfully-flushed Kafka records on flushed for offset commit.
func (p *Pipeline) Run(ctx context.Context, records <-chan []Fetched, flushed chan<- []*kgo.Record) {
	var batch []seed.AnnouncementRecord
	var batchRecords []*kgo.Record
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	flushNow := func(ctx context.Context) {
		if len(batchRecords) == 0 {
			return
		}
		if err := p.sink.SeedAll(batch); err != nil {
			p.logger.Error("ingest: batch seed failed, retaining for retry", zap.Error(err))
			if len(batchRecords) >= p.batchSize*10 {
				p.logger.Error("ingest: dropping oversized batch after repeated flush failures",
					zap.Int("dropped_records", len(batchRecords)))
				batch = nil
				batchRecords = nil
			}
			return
		}
		select {
		case flushed <- batchRecords:
		case <-ctx.Done():
		}
		batch = nil
		batchRecords = nil
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flushNow(shutdownCtx)
			cancel()
			return

		case recs, ok := <-records:
			if !ok {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				flushNow(shutdownCtx)
				cancel()
				return
			}
			for _, f := range recs {
				if f.DecodeErr != nil {
					p.logger.Warn("ingest: dropping undecodable record",
						zap.String("topic", f.Record.Topic), zap.Error(f.DecodeErr))
					batchRecords = append(batchRecords, f.Record)
					continue
				}
				batch = append(batch, f.Announcement)
				batchRecords = append(batchRecords, f.Record)
			}
			if len(batch) >= p.batchSize {
				flushNow(ctx)
			}

		case <-ticker.C:
			flushNow(ctx)
		}
	}
}
