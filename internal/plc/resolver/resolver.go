// Package resolver implements get-or-create for the deduplicated entities
// (identifiers, handles, service endpoints).
//
// Concurrency control is optimistic: look up, insert on miss, and on a
// unique-constraint conflict look up again. The storage layer's uniqueness
// constraint is the only arbiter; there are no in-process locks. Retries are
// bounded, and exhausting the bound is reported as models.ErrEntityConflictExhausted.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"plcwatch/internal/plc/metrics"
	"plcwatch/internal/plc/models"
	"plcwatch/pkg/platform/sentinel"
)

// DefaultMaxAttempts bounds lookup+insert rounds per resolution.
const DefaultMaxAttempts = 4

// Store persists deduplicated entities. Find* return sentinel.ErrNotFound on a
// miss; Create* return sentinel.ErrConflict when the natural key already exists.
type Store interface {
	FindIdentifier(ctx context.Context, did string) (*models.Identifier, error)
	CreateIdentifier(ctx context.Context, identifier *models.Identifier) error
	FindHandle(ctx context.Context, name string) (*models.Handle, error)
	CreateHandle(ctx context.Context, handle *models.Handle) error
	FindServiceEndpoint(ctx context.Context, endpoint string) (*models.ServiceEndpoint, error)
	CreateServiceEndpoint(ctx context.Context, endpoint *models.ServiceEndpoint) error
}

// Resolver resolves natural keys to persisted entities.
type Resolver struct {
	store       Store
	maxAttempts int
	clock       func() time.Time
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Option func(*Resolver)

// WithMaxAttempts overrides DefaultMaxAttempts. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(r *Resolver) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func New(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve is the kind-agnostic entry point.
func (r *Resolver) Resolve(ctx context.Context, kind models.EntityKind, key string) (models.EntityRef, error) {
	if !kind.IsValid() {
		return models.EntityRef{}, fmt.Errorf("resolve %q: unknown entity kind", kind)
	}
	switch kind {
	case models.EntityIdentifier:
		e, err := r.ResolveIdentifier(ctx, key)
		if err != nil {
			return models.EntityRef{}, err
		}
		return e.Ref(), nil
	case models.EntityHandle:
		e, err := r.ResolveHandle(ctx, key)
		if err != nil {
			return models.EntityRef{}, err
		}
		return e.Ref(), nil
	default:
		e, err := r.ResolveServiceEndpoint(ctx, key)
		if err != nil {
			return models.EntityRef{}, err
		}
		return e.Ref(), nil
	}
}

func (r *Resolver) ResolveIdentifier(ctx context.Context, did string) (*models.Identifier, error) {
	return resolve(ctx, r, models.EntityIdentifier, did,
		r.store.FindIdentifier, r.store.CreateIdentifier, models.NewIdentifier)
}

func (r *Resolver) ResolveHandle(ctx context.Context, name string) (*models.Handle, error) {
	return resolve(ctx, r, models.EntityHandle, name,
		r.store.FindHandle, r.store.CreateHandle, models.NewHandle)
}

func (r *Resolver) ResolveServiceEndpoint(ctx context.Context, endpoint string) (*models.ServiceEndpoint, error) {
	return resolve(ctx, r, models.EntityServiceEndpoint, endpoint,
		r.store.FindServiceEndpoint, r.store.CreateServiceEndpoint, models.NewServiceEndpoint)
}

func resolve[T any](
	ctx context.Context,
	r *Resolver,
	kind models.EntityKind,
	key string,
	find func(context.Context, string) (T, error),
	create func(context.Context, T) error,
	build func(string, time.Time) T,
) (T, error) {
	var zero T
	if key == "" {
		return zero, models.Missing(string(kind))
	}

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		found, err := find(ctx, key)
		if err == nil {
			return found, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return zero, fmt.Errorf("find %s %q: %w", kind, key, err)
		}

		candidate := build(key, r.clock())
		err = create(ctx, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return zero, fmt.Errorf("create %s %q: %w", kind, key, err)
		}

		// Another writer inserted the same key between our lookup and insert.
		r.metrics.IncrementResolverConflict(string(kind))
		if r.logger != nil {
			r.logger.DebugContext(ctx, "entity insert conflict, retrying lookup",
				"entity", kind,
				"key", key,
				"attempt", attempt,
			)
		}
	}

	r.metrics.IncrementResolverExhausted(string(kind))
	return zero, fmt.Errorf("resolve %s %q after %d attempts: %w", kind, key, r.maxAttempts, models.ErrEntityConflictExhausted)
}
