// Package ingest consumes observed announcements from Kafka as an
// alternative to the Announcements TSV file, batching them into the
// seeder the way the teacher's state pipeline batched parsed BMP routes
// into Postgres writes.
package ingest

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"

	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/seed"
)

// message is the wire shape of one Kafka-carried announcement, decoded
// with encoding/json the way the teacher marshals its own attrs blob.
type message struct {
	Prefix        string    `json:"prefix"`
	ASPath        []rib.ASN `json:"as_path"`
	Timestamp     int64     `json:"timestamp"`
	Origin        rib.ASN   `json:"origin"`
	PrefixID      uint32    `json:"prefix_id"`
	PrefixBlockID uint32    `json:"prefix_block_id"`
}

// Fetched pairs one polled Kafka record with its decode outcome. Decoding
// happens as each record is fetched, rather than being deferred to the
// batching stage, so the pipeline only ever deals in domain
// announcement records (plus whatever failed to become one).
type Fetched struct {
	Record       *kgo.Record
	Announcement seed.AnnouncementRecord
	DecodeErr    error
}

func decode(rec *kgo.Record) (seed.AnnouncementRecord, error) {
	var m message
	if err := json.Unmarshal(rec.Value, &m); err != nil {
		return seed.AnnouncementRecord{}, fmt.Errorf("ingest: decoding message: %w", err)
	}
	return seed.AnnouncementRecord{
		PrefixString: m.Prefix,
		ASPath:       m.ASPath,
		Timestamp:    m.Timestamp,
		Origin:       m.Origin,
		GlobalID:     m.PrefixID,
		BlockID:      rib.BlockID(m.PrefixBlockID),
	}, nil
}

// Consumer wraps a franz-go consumer-group client, decoding each fetched
// record and handing off the result on one channel, committing offsets
// only after the caller confirms a batch has been seeded.
type Consumer struct {
	client *kgo.Client
	logger *zap.Logger
	joined atomic.Bool
}

// NewConsumer builds a Consumer for the given topics under groupID.
func NewConsumer(brokers []string, groupID string, topics []string, clientID string,
	fetchMaxBytes int32, tlsCfg *tls.Config, saslMech sasl.Mechanism, logger *zap.Logger) (*Consumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Consumer{logger: logger}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.ClientID(clientID),
		kgo.FetchMaxBytes(fetchMaxBytes),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			c.joined.Store(true)
			logger.Info("ingest consumer: partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, cl *kgo.Client, _ map[string][]int32) {
			if err := cl.CommitMarkedOffsets(ctx); err != nil {
				logger.Error("ingest consumer: commit on revoke failed", zap.Error(err))
			}
			c.joined.Store(false)
			logger.Info("ingest consumer: partitions revoked")
		}),
		kgo.OnPartitionsLost(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			c.joined.Store(false)
			logger.Info("ingest consumer: partitions lost")
		}),
	}

	if tlsCfg != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}
	if saslMech != nil {
		opts = append(opts, kgo.SASL(saslMech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	c.client = client
	return c, nil
}

// Run polls fetches, decodes each record immediately, and forwards the
// decoded batch on records until ctx is cancelled, committing offsets
// for whatever the caller sends back on flushed.
func (c *Consumer) Run(ctx context.Context, records chan<- []Fetched, flushed <-chan []*kgo.Record, commitWg *sync.WaitGroup) {
	commitWg.Add(1)
	go func() {
		defer commitWg.Done()
		for recs := range flushed {
			for _, r := range recs {
				c.client.MarkCommitRecords(r)
			}
			commitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.client.CommitMarkedOffsets(commitCtx); err != nil {
				c.logger.Error("ingest consumer: commit offsets failed", zap.Error(err))
			}
			cancel()
		}
	}()

	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				c.logger.Error("ingest consumer: fetch error",
					zap.String("topic", e.Topic),
					zap.Int32("partition", e.Partition),
					zap.Error(e.Err),
				)
			}
		}

		var batch []Fetched
		fetches.EachRecord(func(r *kgo.Record) {
			ann, err := decode(r)
			if err != nil {
				c.logger.Warn("ingest consumer: undecodable record",
					zap.String("topic", r.Topic), zap.Error(err))
			}
			batch = append(batch, Fetched{Record: r, Announcement: ann, DecodeErr: err})
		})

		if len(batch) > 0 {
			select {
			case records <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

// IsJoined reports whether this consumer currently holds a partition
// assignment, used by the readiness probe.
func (c *Consumer) IsJoined() bool {
	return c.joined.Load()
}

// Close releases the underlying client.
func (c *Consumer) Close() {
	c.client.Close()
}
