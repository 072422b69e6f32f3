package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"plcwatch/internal/plc/chain"
	"plcwatch/internal/plc/models"
	"plcwatch/internal/plc/timeline"
	dErrors "plcwatch/pkg/domain-errors"
	"plcwatch/pkg/platform/sentinel"
	strs "plcwatch/pkg/platform/strings"
)

// HandleTimeline returns the ownership history of a handle.
func (s *Service) HandleTimeline(ctx context.Context, handle string) (*timeline.Timeline, error) {
	ctx, span := s.tracer.Start(ctx, "plc.HandleTimeline")
	defer span.End()
	span.SetAttributes(attribute.String("plc.handle", handle))

	if handle == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "handle is required")
	}

	start := time.Now()
	defer func() { s.metrics.ObserveTimelineLatency(time.Since(start)) }()

	tl, generation, ok := s.cachedTimeline(ctx, handle)
	if ok {
		return tl, nil
	}

	if _, err := s.store.FindHandle(ctx, handle); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "handle not found")
		}
		return nil, translate(err, "failed to load handle")
	}

	candidates, err := s.store.ListOperationsByHandle(ctx, handle)
	if err != nil {
		return nil, translate(err, "failed to load handle operations")
	}

	dids := distinctIdentifiers(candidates)
	ops, err := s.store.ListOperationsByIdentifiers(ctx, dids)
	if err != nil {
		return nil, translate(err, "failed to load identifier histories")
	}
	histories := make(map[string][]*models.Operation, len(dids))
	for _, op := range ops {
		histories[op.DID()] = append(histories[op.DID()], op)
	}

	tl = timeline.Build(handle, candidates, histories)
	for _, b := range tl.Broken {
		s.metrics.IncrementBrokenTree()
		s.logger.WarnContext(ctx, "identifier excluded from timeline",
			"handle", handle,
			"did", b.DID,
			"reason", b.Reason,
		)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, tl, generation); err != nil {
			s.logger.WarnContext(ctx, "failed to cache timeline", "handle", handle, "error", err)
		}
	}
	return tl, nil
}

// cachedTimeline returns a cached timeline, or the generation a rebuilt one
// must be stored under.
func (s *Service) cachedTimeline(ctx context.Context, handle string) (*timeline.Timeline, int64, bool) {
	if s.cache == nil {
		return nil, 0, false
	}
	tl, generation, err := s.cache.Get(ctx, handle)
	switch {
	case err == nil:
		s.metrics.IncrementCacheLookup("hit")
		return tl, generation, true
	case errors.Is(err, sentinel.ErrNotFound):
		s.metrics.IncrementCacheLookup("miss")
	default:
		s.metrics.IncrementCacheLookup("error")
		s.logger.WarnContext(ctx, "timeline cache lookup failed", "handle", handle, "error", err)
	}
	return nil, generation, false
}

// IdentifierChains returns every ranked chain of an identifier, canonical first.
func (s *Service) IdentifierChains(ctx context.Context, did string) ([]chain.Chain, error) {
	ctx, span := s.tracer.Start(ctx, "plc.IdentifierChains")
	defer span.End()
	span.SetAttributes(attribute.String("plc.did", did))

	if did == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "did is required")
	}
	if _, err := s.store.FindIdentifier(ctx, did); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "identifier not found")
		}
		return nil, translate(err, "failed to load identifier")
	}

	ops, err := s.store.ListOperationsByIdentifiers(ctx, []string{did})
	if err != nil {
		return nil, translate(err, "failed to load operations")
	}
	chains, err := chain.Resolve(ops)
	if err != nil {
		s.metrics.IncrementBrokenTree()
		s.logger.WarnContext(ctx, "broken operation tree", "did", did, "error", err)
		return nil, translate(err, "broken operation tree")
	}
	return chains, nil
}

func (s *Service) ListHandles(ctx context.Context) ([]*models.Handle, error) {
	handles, err := s.store.ListHandles(ctx)
	if err != nil {
		return nil, translate(err, "failed to list handles")
	}
	return handles, nil
}

func distinctIdentifiers(ops []*models.Operation) []string {
	return strs.Distinct(ops, (*models.Operation).DID)
}
