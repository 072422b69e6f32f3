// Package ingest feeds export records into the ingest service, from a JSON
// Lines stream or from a Kafka topic.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"plcwatch/internal/plc/decode"
	"plcwatch/internal/plc/models"
	dErrors "plcwatch/pkg/domain-errors"
)

// Ingester is satisfied by *service.Service.
type Ingester interface {
	Ingest(ctx context.Context, rec *models.ExportedOperation) (*models.Operation, error)
}

// Stats counts per-record outcomes of one run.
type Stats struct {
	Ingested  int `json:"ingested"`
	Malformed int `json:"malformed"`
	Rejected  int `json:"rejected"`
}

// IngestStream ingests every record of a JSON Lines export in order. Malformed
// lines and records the service rejects are logged and skipped; an
// infrastructure failure stops the run.
func IngestStream(ctx context.Context, ing Ingester, r io.Reader, logger *slog.Logger) (Stats, error) {
	var stats Stats
	reader := decode.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		var lineErr *decode.LineError
		if errors.As(err, &lineErr) {
			stats.Malformed++
			logger.WarnContext(ctx, "skipping malformed record", "line", lineErr.Line, "error", lineErr.Err)
			continue
		}
		if err != nil {
			return stats, err
		}

		if _, err := ing.Ingest(ctx, rec); err != nil {
			if Fatal(err) {
				return stats, err
			}
			stats.Rejected++
			logger.WarnContext(ctx, "record rejected",
				"line", reader.Line(),
				"did", rec.DID,
				"cid", rec.CID,
				"error", err,
			)
			continue
		}
		stats.Ingested++
	}
}

// Fatal reports whether an ingest error is an infrastructure failure rather
// than a problem with the record itself.
func Fatal(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnavailable, dErrors.CodeTimeout, dErrors.CodeInternal:
		return true
	}
	return errors.Is(err, context.Canceled)
}
