//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"plcwatch/internal/plc/models"
	"plcwatch/internal/plc/resolver"
	"plcwatch/internal/plc/store/postgres"
	"plcwatch/pkg/platform/sentinel"
	"plcwatch/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "operations", "identifiers", "handles", "service_endpoints")
	s.Require().NoError(err)
}

// TestUniqueViolationIsConflict verifies the driver error is translated to sentinel.ErrConflict.
func (s *PostgresStoreSuite) TestUniqueViolationIsConflict() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateHandle(ctx, models.NewHandle("alice.test", s.now)))

	err := s.store.CreateHandle(ctx, models.NewHandle("alice.test", s.now))
	s.ErrorIs(err, sentinel.ErrConflict)

	_, err = s.store.FindHandle(ctx, "bob.test")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentResolveConverges verifies racing resolvers converge on one row per key.
func (s *PostgresStoreSuite) TestConcurrentResolveConverges() {
	ctx := context.Background()
	r := resolver.New(s.store)
	const goroutines = 32

	var wg sync.WaitGroup
	refs := make([]models.EntityRef, goroutines)
	errs := make([]error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			refs[i], errs[i] = r.Resolve(ctx, models.EntityServiceEndpoint, "https://pds.race.test")
		}(i)
	}
	wg.Wait()

	for i := range refs {
		s.Require().NoError(errs[i])
		s.Equal(refs[0].ID, refs[i].ID)
	}

	var count int
	err := s.postgres.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM service_endpoints WHERE endpoint = $1`, "https://pds.race.test",
	).Scan(&count)
	s.Require().NoError(err)
	s.Equal(1, count)
}

// TestOperationRoundTrip verifies joins rebuild handle and endpoint references.
func (s *PostgresStoreSuite) TestOperationRoundTrip() {
	ctx := context.Background()
	identifier := models.NewIdentifier("did:plc:alice", s.now)
	handle := models.NewHandle("alice.test", s.now)
	endpoint := models.NewServiceEndpoint("https://pds.test", s.now)
	s.Require().NoError(s.store.CreateIdentifier(ctx, identifier))
	s.Require().NoError(s.store.CreateHandle(ctx, handle))
	s.Require().NoError(s.store.CreateServiceEndpoint(ctx, endpoint))

	root := &models.Operation{
		CID: "c1", Kind: models.KindGenesis, Identifier: *identifier,
		Handle: handle, Endpoint: endpoint, CreatedAt: s.now,
	}
	tomb := &models.Operation{
		CID: "c2", Kind: models.KindTombstone, Identifier: *identifier,
		PrevCID: "c1", CreatedAt: s.now.Add(time.Hour),
	}
	s.Require().NoError(s.store.CreateOperation(ctx, root))
	s.Require().NoError(s.store.CreateOperation(ctx, tomb))

	s.Run("duplicate cid conflicts", func() {
		s.ErrorIs(s.store.CreateOperation(ctx, root), sentinel.ErrConflict)
	})

	s.Run("dangling prev is not found", func() {
		orphan := &models.Operation{CID: "c3", Kind: models.KindTombstone, Identifier: *identifier, PrevCID: "nope", CreatedAt: s.now}
		s.ErrorIs(s.store.CreateOperation(ctx, orphan), sentinel.ErrNotFound)
	})

	s.Run("loads by identifier", func() {
		ops, err := s.store.ListOperationsByIdentifiers(ctx, []string{"did:plc:alice"})
		s.Require().NoError(err)
		s.Require().Len(ops, 2)
		s.Equal("c1", ops[0].CID)
		s.Equal("alice.test", ops[0].HandleName())
		s.Equal("https://pds.test", ops[0].EndpointURL())
		s.Equal("c1", ops[1].PrevCID)
		s.Nil(ops[1].Handle)
	})

	s.Run("finds the root", func() {
		op, err := s.store.FindRootOperation(ctx, "did:plc:alice")
		s.Require().NoError(err)
		s.Equal("c1", op.CID)
		_, err = s.store.FindRootOperation(ctx, "did:plc:nobody")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("loads by handle", func() {
		ops, err := s.store.ListOperationsByHandle(ctx, "alice.test")
		s.Require().NoError(err)
		s.Require().Len(ops, 1)
		s.Equal(models.KindGenesis, ops[0].Kind)
	})

	s.Run("set nullified", func() {
		s.Require().NoError(s.store.SetNullified(ctx, "c2", true))
		op, err := s.store.FindOperation(ctx, "c2")
		s.Require().NoError(err)
		s.True(op.Nullified)
		s.ErrorIs(s.store.SetNullified(ctx, "missing", true), sentinel.ErrNotFound)
	})
}
