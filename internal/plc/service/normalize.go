package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"plcwatch/internal/plc/models"
	"plcwatch/pkg/platform/sentinel"
)

// Normalize turns a decoded export record into a persisted Operation that
// references deduplicated entities. The prev pointer is checked before any
// entity is resolved, and the operation row is written once at the end, so a
// failed record never leaves an operation behind.
//
// A record that would break an already valid history is rejected as
// malformed: a second root for the identifier, or a createdAt earlier than
// the prev operation's.
func (s *Service) Normalize(ctx context.Context, rec *models.ExportedOperation) (*models.Operation, error) {
	ctx, span := s.tracer.Start(ctx, "plc.Normalize")
	defer span.End()

	if rec == nil || rec.Operation == nil {
		return nil, models.Missing("operation")
	}

	var handle, endpoint string
	switch v := rec.Operation.(type) {
	case models.Genesis:
		handle, endpoint = v.Handle, v.Service
	case models.Update:
		name, ok := v.Handle()
		if !ok {
			return nil, fmt.Errorf("normalize %s: %w", rec.CID, models.ErrHandleNotFound)
		}
		handle, endpoint = name, v.PDSEndpoint
	case models.Tombstone:
		if v.Prev == "" {
			return nil, models.Missing("operation.prev")
		}
	default:
		return nil, models.Invalid("operation", fmt.Sprintf("unsupported variant %T", v))
	}

	prev := rec.Operation.PrevCID()
	if prev != "" {
		if err := s.checkPrev(ctx, rec, prev); err != nil {
			return nil, err
		}
	} else if err := s.checkRoot(ctx, rec); err != nil {
		return nil, err
	}

	identifier, err := s.entities.ResolveIdentifier(ctx, rec.DID)
	if err != nil {
		return nil, fmt.Errorf("resolve identifier: %w", err)
	}

	op := &models.Operation{
		CID:        rec.CID,
		Kind:       rec.Operation.Kind(),
		Identifier: *identifier,
		PrevCID:    prev,
		Nullified:  rec.Nullified,
		CreatedAt:  rec.CreatedAt,
	}

	if op.Kind != models.KindTombstone {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			h, err := s.entities.ResolveHandle(gctx, handle)
			if err != nil {
				return fmt.Errorf("resolve handle: %w", err)
			}
			op.Handle = h
			return nil
		})
		g.Go(func() error {
			e, err := s.entities.ResolveServiceEndpoint(gctx, endpoint)
			if err != nil {
				return fmt.Errorf("resolve service endpoint: %w", err)
			}
			op.Endpoint = e
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if err := s.store.CreateOperation(ctx, op); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, fmt.Errorf("prev %s of %s: %w", prev, op.CID, models.ErrUnknownPrevOperation)
		}
		return nil, fmt.Errorf("create operation: %w", err)
	}
	return op, nil
}

func (s *Service) checkPrev(ctx context.Context, rec *models.ExportedOperation, prev string) error {
	parent, err := s.store.FindOperation(ctx, prev)
	if errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("prev %s: %w", prev, models.ErrUnknownPrevOperation)
	}
	if err != nil {
		return fmt.Errorf("find prev operation: %w", err)
	}
	if parent.DID() != rec.DID {
		return fmt.Errorf("prev %s belongs to %s: %w", prev, parent.DID(), models.ErrUnknownPrevOperation)
	}
	if rec.CreatedAt.Before(parent.CreatedAt) {
		return models.Invalid("createdAt", fmt.Sprintf("earlier than prev operation %s", prev))
	}
	return nil
}

// checkRoot rejects a root for an identifier that already has one.
func (s *Service) checkRoot(ctx context.Context, rec *models.ExportedOperation) error {
	root, err := s.store.FindRootOperation(ctx, rec.DID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find root operation: %w", err)
	}
	if root.CID == rec.CID {
		return fmt.Errorf("operation %s: %w", rec.CID, sentinel.ErrConflict)
	}
	return models.Invalid("operation.prev", fmt.Sprintf("identifier already has root operation %s", root.CID))
}
