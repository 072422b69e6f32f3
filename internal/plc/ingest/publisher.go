package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"plcwatch/internal/plc/decode"
)

const publishBatch = 500

// Publisher writes export records to the topic, keyed by DID.
type Publisher struct {
	client *kgo.Client
	logger *slog.Logger
}

func NewPublisher(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Publisher{client: client, logger: logger}, nil
}

// PublishStream publishes every decodable line of a JSON Lines export and
// returns how many records were produced. Malformed lines are skipped.
func (p *Publisher) PublishStream(ctx context.Context, r io.Reader) (int, error) {
	reader := decode.NewReader(r)
	batch := make([]*kgo.Record, 0, publishBatch)
	published := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.client.ProduceSync(ctx, batch...).FirstErr(); err != nil {
			return fmt.Errorf("produce records: %w", err)
		}
		published += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var lineErr *decode.LineError
		if errors.As(err, &lineErr) {
			p.logger.WarnContext(ctx, "skipping malformed record", "line", lineErr.Line, "error", lineErr.Err)
			continue
		}
		if err != nil {
			return published, err
		}

		value := append([]byte(nil), reader.Raw()...)
		batch = append(batch, &kgo.Record{Key: []byte(rec.DID), Value: value})
		if len(batch) == publishBatch {
			if err := flush(); err != nil {
				return published, err
			}
		}
	}
	if err := flush(); err != nil {
		return published, err
	}
	return published, nil
}

func (p *Publisher) Close() {
	p.client.Close()
}
