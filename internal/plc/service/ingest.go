package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"plcwatch/internal/plc/models"
	"plcwatch/pkg/platform/sentinel"
	strs "plcwatch/pkg/platform/strings"
)

const (
	outcomeNormalized  = "normalized"
	outcomeRedelivered = "redelivered"
	outcomeRejected    = "rejected"
)

// Ingest stores one export record. A record whose cid is already stored is a
// re-delivery: only the nullified flag is corrected. Returned errors carry
// domain-error codes.
func (s *Service) Ingest(ctx context.Context, rec *models.ExportedOperation) (*models.Operation, error) {
	ctx, span := s.tracer.Start(ctx, "plc.Ingest")
	defer span.End()

	kind := "unknown"
	if rec != nil && rec.Operation != nil {
		kind = string(rec.Operation.Kind())
		span.SetAttributes(attribute.String("plc.did", rec.DID), attribute.String("plc.cid", rec.CID))
	}

	op, outcome, err := s.ingest(ctx, rec)
	if err != nil {
		s.metrics.IncrementIngested(kind, outcomeRejected)
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingest failed")
		return nil, translate(err, "failed to ingest operation")
	}
	s.metrics.IncrementIngested(kind, outcome)
	s.invalidate(ctx, op.DID())
	return op, nil
}

func (s *Service) ingest(ctx context.Context, rec *models.ExportedOperation) (*models.Operation, string, error) {
	if rec == nil {
		return nil, "", models.Missing("record")
	}
	if rec.CID == "" {
		return nil, "", models.Missing("cid")
	}

	existing, err := s.store.FindOperation(ctx, rec.CID)
	switch {
	case err == nil:
		op, err := s.redeliver(ctx, existing, rec)
		return op, outcomeRedelivered, err
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, "", fmt.Errorf("find operation: %w", err)
	}

	op, err := s.Normalize(ctx, rec)
	if errors.Is(err, sentinel.ErrConflict) {
		// Another consumer stored the same cid between lookup and insert.
		existing, findErr := s.store.FindOperation(ctx, rec.CID)
		if findErr != nil {
			return nil, "", fmt.Errorf("find operation after conflict: %w", findErr)
		}
		op, err := s.redeliver(ctx, existing, rec)
		return op, outcomeRedelivered, err
	}
	if err != nil {
		return nil, "", err
	}
	s.logger.DebugContext(ctx, "operation normalized",
		"did", op.DID(),
		"cid", op.CID,
		"kind", op.Kind,
	)
	return op, outcomeNormalized, nil
}

func (s *Service) redeliver(ctx context.Context, existing *models.Operation, rec *models.ExportedOperation) (*models.Operation, error) {
	if existing.DID() != rec.DID {
		return nil, fmt.Errorf("cid %s already stored for %s: %w", rec.CID, existing.DID(), sentinel.ErrConflict)
	}
	if existing.Nullified == rec.Nullified {
		return existing, nil
	}
	if err := s.store.SetNullified(ctx, rec.CID, rec.Nullified); err != nil {
		return nil, fmt.Errorf("set nullified: %w", err)
	}
	s.logger.InfoContext(ctx, "nullified flag corrected",
		"did", rec.DID,
		"cid", rec.CID,
		"nullified", rec.Nullified,
	)
	existing.Nullified = rec.Nullified
	return existing, nil
}

// invalidate drops cached timelines of every handle the identifier has referenced.
// Failures are logged; a stale entry expires with the cache TTL.
func (s *Service) invalidate(ctx context.Context, did string) {
	if s.cache == nil {
		return
	}
	ops, err := s.store.ListOperationsByIdentifiers(ctx, []string{did})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list operations for cache invalidation", "did", did, "error", err)
		return
	}
	handles := strs.Distinct(ops, (*models.Operation).HandleName)
	if len(handles) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, handles...); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate timeline cache", "did", did, "error", err)
	}
}
