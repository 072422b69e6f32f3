package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"plcwatch/internal/platform/config"
	"plcwatch/internal/plc/decode"
	"plcwatch/internal/plc/metrics"
)

// Consumer reads export records from a Kafka topic in a consumer group.
// Records are keyed by DID, so one identifier's history stays in one
// partition and arrives in order. Offsets are committed after each polled
// batch has been ingested.
type Consumer struct {
	client   *kgo.Client
	ingester Ingester
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type ConsumerOption func(*Consumer)

func WithMetrics(m *metrics.Metrics) ConsumerOption {
	return func(c *Consumer) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

func NewConsumer(cfg config.KafkaConfig, ing Ingester, opts ...ConsumerOption) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	c := &Consumer{
		client:   client,
		ingester: ing,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run polls until ctx is cancelled or an infrastructure failure occurs. On a
// failure the current batch is not committed, so a restart re-reads it;
// re-delivered records are idempotent.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "export consumer started")
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "fetch failed", "topic", topic, "partition", partition, "error", err)
		})

		var fatal error
		fetches.EachRecord(func(rec *kgo.Record) {
			if fatal != nil {
				return
			}
			fatal = c.handle(ctx, rec)
		})
		if fatal != nil {
			return fatal
		}

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.ErrorContext(ctx, "offset commit failed", "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, rec *kgo.Record) error {
	op, err := decode.Decode(rec.Value)
	if err != nil {
		c.metrics.IncrementIngested("unknown", "malformed")
		c.logger.WarnContext(ctx, "skipping malformed record",
			"partition", rec.Partition,
			"offset", rec.Offset,
			"error", err,
		)
		return nil
	}
	if _, err := c.ingester.Ingest(ctx, op); err != nil {
		if Fatal(err) {
			return fmt.Errorf("ingest %s at offset %d: %w", op.CID, rec.Offset, err)
		}
		c.logger.WarnContext(ctx, "record rejected",
			"did", op.DID,
			"cid", op.CID,
			"offset", rec.Offset,
			"error", err,
		)
	}
	return nil
}

func (c *Consumer) Close() {
	c.client.Close()
}
