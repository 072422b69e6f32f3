// Package service orchestrates the write path (normalize and ingest exported
// operations) and the read path (chains, handle timelines) over a Store.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks TimelineCache

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"plcwatch/internal/plc/metrics"
	"plcwatch/internal/plc/models"
	"plcwatch/internal/plc/timeline"
)

// Store persists operations and answers the read-side lookups.
type Store interface {
	FindIdentifier(ctx context.Context, did string) (*models.Identifier, error)
	FindHandle(ctx context.Context, name string) (*models.Handle, error)
	ListHandles(ctx context.Context) ([]*models.Handle, error)
	FindOperation(ctx context.Context, cid string) (*models.Operation, error)
	FindRootOperation(ctx context.Context, did string) (*models.Operation, error)
	CreateOperation(ctx context.Context, op *models.Operation) error
	SetNullified(ctx context.Context, cid string, nullified bool) error
	ListOperationsByIdentifiers(ctx context.Context, dids []string) ([]*models.Operation, error)
	ListOperationsByHandle(ctx context.Context, name string) ([]*models.Operation, error)
}

// EntityResolver is satisfied by *resolver.Resolver.
type EntityResolver interface {
	ResolveIdentifier(ctx context.Context, did string) (*models.Identifier, error)
	ResolveHandle(ctx context.Context, name string) (*models.Handle, error)
	ResolveServiceEndpoint(ctx context.Context, endpoint string) (*models.ServiceEndpoint, error)
}

// TimelineCache stores built timelines by handle. Get returns sentinel.ErrNotFound
// on a miss, along with the handle's generation; Set with that generation is a
// no-op once Invalidate has bumped it.
type TimelineCache interface {
	Get(ctx context.Context, handle string) (*timeline.Timeline, int64, error)
	Set(ctx context.Context, tl *timeline.Timeline, generation int64) error
	Invalidate(ctx context.Context, handles ...string) error
}

type Service struct {
	store    Store
	entities EntityResolver
	cache    TimelineCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Option func(*Service)

// WithCache enables timeline caching. Without it every read rebuilds the timeline.
func WithCache(cache TimelineCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, entities EntityResolver, opts ...Option) *Service {
	s := &Service{
		store:    store,
		entities: entities,
		logger:   slog.Default(),
		tracer:   otel.Tracer("plcwatch/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
