package topology

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"

	"github.com/routerd/routerd/internal/metrics"
	"github.com/routerd/routerd/internal/router"
)

// Consumer applies RouterNodeUpdate records from a Kafka topic to a
// router.Router's router-node table. It owns no routing logic of its own —
// it is the translation from the topology computation's output to the
// core's existing mutation API (spec section 12).
type Consumer struct {
	client *kgo.Client
	logger *zap.Logger
	joined atomic.Bool
}

// NewConsumer mirrors the teacher's state-consumer construction: seed
// brokers, a consumer group, manual offset commit, and partition-assignment
// callbacks that flip a readiness flag.
func NewConsumer(brokers []string, groupID string, topics []string, clientID string,
	fetchMaxBytes int32, tlsCfg *tls.Config, saslMech sasl.Mechanism, logger *zap.Logger) (*Consumer, error) {
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
			logger.Info("topology consumer: partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, cl *kgo.Client, _ map[string][]int32) {
			if err := cl.CommitMarkedOffsets(ctx); err != nil {
				logger.Error("topology consumer: commit on revoke failed", zap.Error(err))
			}
			c.joined.Store(false)
			logger.Info("topology consumer: partitions revoked")
		}),
		kgo.OnPartitionsLost(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			c.joined.Store(false)
			logger.Info("topology consumer: partitions lost")
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

// Run polls fetches, decodes each record as a RouterNodeUpdate, and applies
// it to r. Unlike the teacher's two-stage records/flushed channel split
// (which exists to decouple Kafka fetch from a batched DB writer), there is
// no persistence layer downstream here, so decode-and-apply happens inline
// per record. A decoded record is marked only after ApplyUpdate returns
// without error; records that fail to decode are marked as well. Marked
// offsets are committed once per poll.
func (c *Consumer) Run(ctx context.Context, r *router.Router) {
	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				c.logger.Error("topology consumer: fetch error",
					zap.String("topic", e.Topic),
					zap.Int32("partition", e.Partition),
					zap.Error(e.Err),
				)
			}
		}

		var toMark []*kgo.Record
		fetches.EachRecord(func(rec *kgo.Record) {
			var upd RouterNodeUpdate
			if err := json.Unmarshal(rec.Value, &upd); err != nil {
				c.logger.Error("topology consumer: decode failed", zap.Error(err))
				metrics.TopologyUpdatesTotal.WithLabelValues("decode_error").Inc()
				toMark = append(toMark, rec)
				return
			}
			if err := ApplyUpdate(r, upd); err != nil {
				c.logger.Error("topology consumer: apply failed",
					zap.String("kind", string(upd.Kind)),
					zap.String("router_id", upd.FullRouterID()),
					zap.Error(err))
				metrics.TopologyUpdatesTotal.WithLabelValues("apply_error").Inc()
				return
			}
			metrics.TopologyUpdatesTotal.WithLabelValues(string(upd.Kind)).Inc()
			toMark = append(toMark, rec)
		})

		if len(toMark) > 0 {
			for _, rec := range toMark {
				c.client.MarkCommitRecords(rec)
			}
			commitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := c.client.CommitMarkedOffsets(commitCtx); err != nil {
				c.logger.Error("topology consumer: commit offsets failed", zap.Error(err))
			}
			cancel()
		}
	}
}

func (c *Consumer) IsJoined() bool { return c.joined.Load() }

func (c *Consumer) Close() { c.client.Close() }
