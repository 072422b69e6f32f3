package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"plcwatch/internal/plc/metrics"
	"plcwatch/internal/plc/models"
	"plcwatch/internal/plc/resolver"
	"plcwatch/internal/plc/service/mocks"
	"plcwatch/internal/plc/store/memory"
	"plcwatch/internal/plc/timeline"
	dErrors "plcwatch/pkg/domain-errors"
	"plcwatch/pkg/platform/sentinel"
)

var epoch = time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC)

func at(minute int) time.Time {
	return epoch.Add(time.Duration(minute) * time.Minute)
}

func genesis(did, cid, handle, pds string, minute int) *models.ExportedOperation {
	return &models.ExportedOperation{
		DID:       did,
		CID:       cid,
		CreatedAt: at(minute),
		Operation: models.Genesis{Sig: "sig", Handle: handle, Service: pds, SigningKey: "did:key:s", RecoveryKey: "did:key:r"},
	}
}

func update(did, cid, prev, handle, pds string, minute int) *models.ExportedOperation {
	return &models.ExportedOperation{
		DID:       did,
		CID:       cid,
		CreatedAt: at(minute),
		Operation: models.Update{
			Sig:          "sig",
			Prev:         prev,
			PDSEndpoint:  pds,
			AlsoKnownAs:  []string{"at://" + handle},
			RotationKeys: []string{"did:key:r"},
		},
	}
}

func tombstone(did, cid, prev string, minute int) *models.ExportedOperation {
	return &models.ExportedOperation{
		DID:       did,
		CID:       cid,
		CreatedAt: at(minute),
		Operation: models.Tombstone{Sig: "sig", Prev: prev},
	}
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.InMemory
	metrics *metrics.Metrics
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = s.newService()
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := []Option{WithMetrics(s.metrics), WithLogger(logger)}
	return New(s.store, resolver.New(s.store), append(base, opts...)...)
}

func (s *ServiceSuite) ingest(recs ...*models.ExportedOperation) {
	for _, rec := range recs {
		_, err := s.service.Ingest(s.ctx, rec)
		s.Require().NoError(err, "ingest %s", rec.CID)
	}
}

// seedRoot stores an extra root for did directly, bypassing the normalizer's
// checks, the way histories written before those checks look.
func (s *ServiceSuite) seedRoot(did, cid, handle string, minute int) {
	entities := resolver.New(s.store)
	identifier, err := entities.ResolveIdentifier(s.ctx, did)
	s.Require().NoError(err)
	h, err := entities.ResolveHandle(s.ctx, handle)
	s.Require().NoError(err)
	e, err := entities.ResolveServiceEndpoint(s.ctx, "https://pds")
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateOperation(s.ctx, &models.Operation{
		CID:        cid,
		Kind:       models.KindGenesis,
		Identifier: *identifier,
		Handle:     h,
		Endpoint:   e,
		CreatedAt:  at(minute),
	}))
}

func (s *ServiceSuite) TestNormalizeGenesis() {
	op, err := s.service.Normalize(s.ctx, genesis("did:plc:a", "cid-1", "alice.test", "https://pds.test", 0))
	s.Require().NoError(err)

	s.Equal(models.KindGenesis, op.Kind)
	s.Equal("did:plc:a", op.DID())
	s.NotEmpty(op.Identifier.ID)
	s.Require().NotNil(op.Handle)
	s.Equal("alice.test", op.Handle.Name)
	s.Require().NotNil(op.Endpoint)
	s.Equal("https://pds.test", op.Endpoint.Endpoint)
	s.True(op.IsRoot())

	stored, err := s.store.FindOperation(s.ctx, "cid-1")
	s.Require().NoError(err)
	s.Equal(op.Handle.ID, stored.Handle.ID)
	s.Equal(at(0), stored.CreatedAt)
}

func (s *ServiceSuite) TestNormalizeSharesEntities() {
	first, err := s.service.Normalize(s.ctx, genesis("did:plc:a", "cid-1", "alice.test", "https://pds.test", 0))
	s.Require().NoError(err)
	second, err := s.service.Normalize(s.ctx, update("did:plc:a", "cid-2", "cid-1", "alice.test", "https://pds.test", 1))
	s.Require().NoError(err)

	s.Equal(first.Identifier.ID, second.Identifier.ID)
	s.Equal(first.Handle.ID, second.Handle.ID)
	s.Equal(first.Endpoint.ID, second.Endpoint.ID)
	s.Equal("cid-1", second.PrevCID)
}

func (s *ServiceSuite) TestNormalizeUpdateWithoutPrev() {
	op, err := s.service.Normalize(s.ctx, update("did:plc:a", "cid-1", "", "alice.test", "https://pds.test", 0))
	s.Require().NoError(err)
	s.Equal(models.KindUpdate, op.Kind)
	s.True(op.IsRoot())
}

func (s *ServiceSuite) TestNormalizeRejectsOutOfOrderRecord() {
	_, err := s.service.Normalize(s.ctx, update("did:plc:a", "cid-2", "cid-1", "alice.test", "https://pds.test", 1))
	s.Require().ErrorIs(err, models.ErrUnknownPrevOperation)

	_, err = s.store.FindOperation(s.ctx, "cid-2")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindIdentifier(s.ctx, "did:plc:a")
	s.ErrorIs(err, sentinel.ErrNotFound, "no entity is created for a rejected record")
}

func (s *ServiceSuite) TestNormalizeRejectsPrevOfAnotherIdentifier() {
	s.ingest(genesis("did:plc:a", "cid-1", "alice.test", "https://pds.test", 0))

	_, err := s.service.Normalize(s.ctx, update("did:plc:b", "cid-2", "cid-1", "bob.test", "https://pds.test", 1))
	s.ErrorIs(err, models.ErrUnknownPrevOperation)
}

func (s *ServiceSuite) TestNormalizeRequiresHandleAlias() {
	rec := update("did:plc:a", "cid-1", "", "alice.test", "https://pds.test", 0)
	u := rec.Operation.(models.Update)
	u.AlsoKnownAs = []string{"https://alice.example", "at://"}
	rec.Operation = u

	_, err := s.service.Normalize(s.ctx, rec)
	s.ErrorIs(err, models.ErrHandleNotFound)
}

func (s *ServiceSuite) TestNormalizeTombstone() {
	s.ingest(genesis("did:plc:a", "cid-1", "alice.test", "https://pds.test", 0))

	op, err := s.service.Normalize(s.ctx, tombstone("did:plc:a", "cid-2", "cid-1", 1))
	s.Require().NoError(err)
	s.Equal(models.KindTombstone, op.Kind)
	s.Nil(op.Handle)
	s.Nil(op.Endpoint)

	_, err = s.service.Normalize(s.ctx, tombstone("did:plc:a", "cid-3", "missing", 2))
	s.ErrorIs(err, models.ErrUnknownPrevOperation)
}

func (s *ServiceSuite) TestNormalizeRejectsSecondRoot() {
	s.ingest(
		genesis("did:plc:a", "a1", "alice.test", "https://pds.test", 0),
		update("did:plc:a", "a2", "a1", "alice.test", "https://pds.test", 1),
	)

	for name, rec := range map[string]*models.ExportedOperation{
		"genesis":             genesis("did:plc:a", "a9", "alice.test", "https://pds.test", 2),
		"update with no prev": update("did:plc:a", "a8", "", "alice.test", "https://pds.test", 2),
	} {
		s.Run(name, func() {
			_, err := s.service.Ingest(s.ctx, rec)
			s.Require().ErrorIs(err, models.ErrMalformedOperation)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))

			_, err = s.store.FindOperation(s.ctx, rec.CID)
			s.ErrorIs(err, sentinel.ErrNotFound)
		})
	}

	chains, err := s.service.IdentifierChains(s.ctx, "did:plc:a")
	s.Require().NoError(err)
	s.Equal([]string{"a1", "a2"}, chains[0].CIDs())
}

func (s *ServiceSuite) TestNormalizeRejectsRecordOlderThanPrev() {
	s.ingest(
		genesis("did:plc:a", "a1", "alice.test", "https://pds.test", 5),
		update("did:plc:a", "a2", "a1", "alice.test", "https://pds.test", 6),
	)

	_, err := s.service.Ingest(s.ctx, update("did:plc:a", "a3", "a2", "bob.test", "https://pds.test", 0))
	s.Require().ErrorIs(err, models.ErrMalformedOperation)
	var malformed *models.MalformedOperationError
	s.Require().ErrorAs(err, &malformed)
	s.Equal("createdAt", malformed.Field)

	s.ingest(update("did:plc:a", "a4", "a2", "bob.test", "https://pds.test", 6))

	chains, err := s.service.IdentifierChains(s.ctx, "did:plc:a")
	s.Require().NoError(err)
	s.Equal([]string{"a1", "a2", "a4"}, chains[0].CIDs())

	tl, err := s.service.HandleTimeline(s.ctx, "alice.test")
	s.Require().NoError(err)
	s.Empty(tl.Broken)
	s.NotEmpty(tl.Entries)
}

func (s *ServiceSuite) TestIngestErrorMessageNotRepeated() {
	s.ingest(genesis("did:plc:a", "a1", "alice.test", "https://pds.test", 0))

	_, err := s.service.Ingest(s.ctx, update("did:plc:a", "a2", "nope", "alice.test", "https://pds.test", 1))
	s.Require().Error(err)

	var de *dErrors.Error
	s.Require().True(dErrors.AsError(err, &de))
	s.Equal("failed to ingest operation", de.Message)
	s.Equal(1, strings.Count(err.Error(), models.ErrUnknownPrevOperation.Error()))
}

func (s *ServiceSuite) TestNormalizeDuplicateCID() {
	s.ingest(genesis("did:plc:a", "cid-1", "alice.test", "https://pds.test", 0))

	_, err := s.service.Normalize(s.ctx, genesis("did:plc:a", "cid-1", "alice.test", "https://pds.test", 0))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *ServiceSuite) TestIngestRedeliveryCorrectsNullified() {
	rec := genesis("did:plc:a", "cid-1", "alice.test", "https://pds.test", 0)
	s.ingest(rec)

	again := genesis("did:plc:a", "cid-1", "alice.test", "https://pds.test", 0)
	again.Nullified = true
	op, err := s.service.Ingest(s.ctx, again)
	s.Require().NoError(err)
	s.True(op.Nullified)

	stored, err := s.store.FindOperation(s.ctx, "cid-1")
	s.Require().NoError(err)
	s.True(stored.Nullified)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.OperationsIngested.WithLabelValues("genesis", "normalized")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.OperationsIngested.WithLabelValues("genesis", "redelivered")))
}

func (s *ServiceSuite) TestIngestErrorCodes() {
	s.ingest(genesis("did:plc:a", "cid-1", "alice.test", "https://pds.test", 0))

	tests := []struct {
		name string
		rec  *models.ExportedOperation
		code dErrors.Code
	}{
		{"unknown prev", update("did:plc:a", "cid-9", "nope", "alice.test", "https://pds.test", 1), dErrors.CodeUnprocessable},
		{"cid owned by another identifier", genesis("did:plc:b", "cid-1", "bob.test", "https://pds.test", 1), dErrors.CodeConflict},
		{"missing cid", genesis("did:plc:a", "", "alice.test", "https://pds.test", 1), dErrors.CodeValidation},
		{"empty handle", genesis("did:plc:c", "cid-3", "", "https://pds.test", 1), dErrors.CodeValidation},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.Ingest(s.ctx, tt.rec)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tt.code), "got %v", err)
		})
	}
	s.Equal(float64(len(tests)), testutil.ToFloat64(s.metrics.OperationsIngested.WithLabelValues("genesis", "rejected"))+
		testutil.ToFloat64(s.metrics.OperationsIngested.WithLabelValues("update", "rejected")))
}

func (s *ServiceSuite) TestHandleTimeline() {
	s.ingest(
		genesis("did:plc:a", "a1", "alice.test", "https://pds-a", 1),
		update("did:plc:a", "a2", "a1", "bob.test", "https://pds-a", 2),
		genesis("did:plc:b", "b1", "alice.test", "https://pds-b", 3),
	)

	tl, err := s.service.HandleTimeline(s.ctx, "alice.test")
	s.Require().NoError(err)

	s.Require().Len(tl.Entries, 2)
	s.Equal("did:plc:a", tl.Entries[0].DID)
	s.Require().NotNil(tl.Entries[0].Until)
	s.Equal(at(2), *tl.Entries[0].Until)
	s.Equal("did:plc:b", tl.Entries[1].DID)
	s.Nil(tl.Entries[1].Until)
	s.Require().NotNil(tl.Current)
	s.Equal(timeline.Owner{DID: "did:plc:b", Endpoint: "https://pds-b"}, *tl.Current)
}

func (s *ServiceSuite) TestHandleTimelineIsolatesBrokenIdentifier() {
	s.ingest(
		genesis("did:plc:a", "a1", "alice.test", "https://pds-a", 1),
		genesis("did:plc:b", "b1", "alice.test", "https://pds-b", 2),
	)
	s.seedRoot("did:plc:b", "b2", "alice.test", 3)

	tl, err := s.service.HandleTimeline(s.ctx, "alice.test")
	s.Require().NoError(err)

	s.Require().Len(tl.Entries, 1)
	s.Equal("did:plc:a", tl.Entries[0].DID)
	s.Require().Len(tl.Broken, 1)
	s.Equal("did:plc:b", tl.Broken[0].DID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.BrokenTrees))
}

func (s *ServiceSuite) TestHandleTimelineUnknownHandle() {
	_, err := s.service.HandleTimeline(s.ctx, "ghost.test")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.HandleTimeline(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestIdentifierChains() {
	s.ingest(
		genesis("did:plc:a", "root", "alice.test", "https://pds", 0),
		update("did:plc:a", "lost", "root", "alice.test", "https://pds", 1),
		update("did:plc:a", "kept", "root", "carol.test", "https://pds", 2),
	)
	lost := update("did:plc:a", "lost", "root", "alice.test", "https://pds", 1)
	lost.Nullified = true
	s.ingest(lost)

	chains, err := s.service.IdentifierChains(s.ctx, "did:plc:a")
	s.Require().NoError(err)
	s.Require().Len(chains, 2)
	s.Equal([]string{"root", "kept"}, chains[0].CIDs())
	s.Equal([]string{"root", "lost"}, chains[1].CIDs())
}

func (s *ServiceSuite) TestIdentifierChainsErrors() {
	_, err := s.service.IdentifierChains(s.ctx, "did:plc:nobody")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.ingest(genesis("did:plc:b", "b1", "bob.test", "https://pds", 0))
	s.seedRoot("did:plc:b", "b2", "bob.test", 1)
	_, err = s.service.IdentifierChains(s.ctx, "did:plc:b")
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.ErrorIs(err, models.ErrBrokenOperationTree)
}

func (s *ServiceSuite) TestListHandles() {
	s.ingest(
		genesis("did:plc:a", "a1", "zed.test", "https://pds", 0),
		genesis("did:plc:b", "b1", "amy.test", "https://pds", 1),
	)

	handles, err := s.service.ListHandles(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(handles, 2)
	s.Equal("amy.test", handles[0].Name)
	s.Equal("zed.test", handles[1].Name)
}

func (s *ServiceSuite) TestTimelineCache() {
	ctrl := gomock.NewController(s.T())
	cache := mocks.NewMockTimelineCache(ctrl)
	svc := s.newService(WithCache(cache))

	s.Run("ingest invalidates referenced handles", func() {
		cache.EXPECT().Invalidate(gomock.Any(), "alice.test").Return(nil)
		_, err := svc.Ingest(s.ctx, genesis("did:plc:a", "a1", "alice.test", "https://pds", 0))
		s.Require().NoError(err)

		cache.EXPECT().Invalidate(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		_, err = svc.Ingest(s.ctx, update("did:plc:a", "a2", "a1", "bob.test", "https://pds", 1))
		s.Require().NoError(err)
	})

	s.Run("miss builds and stores", func() {
		cache.EXPECT().Get(gomock.Any(), "alice.test").Return(nil, int64(7), sentinel.ErrNotFound)
		cache.EXPECT().Set(gomock.Any(), gomock.Any(), int64(7)).DoAndReturn(func(_ context.Context, tl *timeline.Timeline, _ int64) error {
			s.Equal("alice.test", tl.Handle)
			return nil
		})
		tl, err := svc.HandleTimeline(s.ctx, "alice.test")
		s.Require().NoError(err)
		s.Len(tl.Entries, 1)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("miss")))
	})

	s.Run("hit skips the store", func() {
		cached := &timeline.Timeline{Handle: "cached.test", Entries: []timeline.Entry{}}
		cache.EXPECT().Get(gomock.Any(), "cached.test").Return(cached, int64(0), nil)
		tl, err := svc.HandleTimeline(s.ctx, "cached.test")
		s.Require().NoError(err)
		s.Same(cached, tl)
	})

	s.Run("cache failure falls back to the store", func() {
		cache.EXPECT().Get(gomock.Any(), "alice.test").Return(nil, int64(0), errors.New("connection refused"))
		cache.EXPECT().Set(gomock.Any(), gomock.Any(), int64(0)).Return(errors.New("connection refused"))
		tl, err := svc.HandleTimeline(s.ctx, "alice.test")
		s.Require().NoError(err)
		s.Len(tl.Entries, 1)
	})
}
