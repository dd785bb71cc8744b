package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cmpbridge/internal/consent/engine/mocks"
	"cmpbridge/internal/consent/models"
	dErrors "cmpbridge/pkg/domain-errors"
	"cmpbridge/pkg/platform/sentinel"
)

type EngineSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	model  *models.DataModel
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	m, err := models.NewDataModel(models.FieldConsentString,
		models.FieldSpec{Name: models.FieldApplies, Kind: models.KindBoolean, Default: false, Aliases: []string{"gdprApplies"}},
		models.FieldSpec{Name: models.FieldConsentString, Kind: models.KindString, Default: "", Aliases: []string{"tcString"}},
		models.FieldSpec{Name: models.FieldVersion, Kind: models.KindNumber, Default: float64(2), Aliases: []string{"tcfPolicyVersion"}},
	)
	s.Require().NoError(err)
	s.model = m
	s.engine, err = New(m, nil)
	s.Require().NoError(err)
}

func (s *EngineSuite) retriever(id string) *mocks.MockRetriever {
	r := mocks.NewMockRetriever(s.ctrl)
	r.EXPECT().ID().Return(id).AnyTimes()
	r.EXPECT().Activate().Times(1)
	return r
}

func (s *EngineSuite) TestNewRequiresModel() {
	e, err := New(nil, nil)
	s.Nil(e)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *EngineSuite) TestStartsWithDefaults() {
	s.Equal(StateInit, s.engine.State())
	s.False(s.engine.Obtained())
	s.Equal(s.model.Defaults(), s.engine.Snapshot())
}

func (s *EngineSuite) TestResolveRetiresEveryRetrieverOnce() {
	a, b, c := s.retriever("a"), s.retriever("b"), s.retriever("c")
	a.EXPECT().Deactivate().Times(1)
	b.EXPECT().Deactivate().Times(1)
	c.EXPECT().Deactivate().Times(1)

	s.engine.Add(a)
	s.engine.Add(b)
	s.engine.Add(c)
	s.Equal(StateActive, s.engine.State())
	s.Equal([]string{"a", "b", "c"}, s.engine.Active())

	s.True(s.engine.Resolve("b", map[string]any{"tcString": "abc", "gdprApplies": true}))
	s.False(s.engine.Resolve("c", "other"))
	s.engine.Cleanup()

	snap := s.engine.Snapshot()
	s.Equal("abc", snap.ConsentString)
	s.True(snap.Applies)
	s.Equal("b", snap.Source)
	s.Empty(s.engine.Active())
}

func (s *EngineSuite) TestResolveIsIdempotent() {
	s.Require().True(s.engine.Resolve("first", "XYZ"))
	before := s.engine.Snapshot()

	s.False(s.engine.Resolve("second", map[string]any{"tcString": "changed", "gdprApplies": true}))
	s.False(s.engine.Resolve("third", "again"))

	s.Equal(before, s.engine.Snapshot())
	s.Equal(StateResolved, s.engine.State())
}

func (s *EngineSuite) TestSnapshotCopiesAreIsolated() {
	defaults := s.engine.Snapshot()
	defaults.Fields[models.FieldConsentString] = "scribbled"
	s.Equal("", s.engine.Snapshot().Fields[models.FieldConsentString])

	s.Require().True(s.engine.Resolve("w", "XYZ"))
	snap := s.engine.Snapshot()
	snap.Fields[models.FieldConsentString] = "TAMPERED"
	delete(snap.Fields, models.FieldVersion)

	again := s.engine.Snapshot()
	s.Equal("XYZ", again.ConsentString)
	s.Equal("XYZ", again.Fields[models.FieldConsentString])
	s.Equal(float64(2), again.Fields[models.FieldVersion])
}

func (s *EngineSuite) TestUnrecognizedPayloadIsNoOp() {
	for _, raw := range []any{nil, 42, 3.14, []string{"a"}} {
		s.False(s.engine.Resolve("x", raw))
	}
	s.False(s.engine.Obtained())
	s.Equal(s.model.Defaults(), s.engine.Snapshot())

	select {
	case <-s.engine.Done():
		s.Fail("done must stay open")
	default:
	}
}

func (s *EngineSuite) TestRemoveDeactivatesOnlyThatRetriever() {
	get, listener := s.retriever("get"), s.retriever("listener")
	get.EXPECT().Deactivate().Times(1)
	listener.EXPECT().Deactivate().Times(1)

	s.engine.Add(get)
	s.engine.Add(listener)

	s.True(s.engine.Remove("get"))
	s.False(s.engine.Remove("get"))
	s.False(s.engine.Remove("missing"))
	s.Equal([]string{"listener"}, s.engine.Active())

	s.True(s.engine.Resolve("listener", "abc"))
}

func (s *EngineSuite) TestCleanupBeforeResolution() {
	a := s.retriever("a")
	a.EXPECT().Deactivate().Times(1)
	s.engine.Add(a)

	s.engine.Cleanup()
	s.engine.Cleanup()

	s.Equal(StateTornDown, s.engine.State())
	s.False(s.engine.Resolve("a", "late"), "torn down requests never resolve")
	s.False(s.engine.Obtained())

	snap, err := s.engine.Wait(context.Background())
	s.True(errors.Is(err, sentinel.ErrInvalidState))
	s.True(dErrors.HasCode(err, dErrors.CodeConsentUnavailable))
	s.Equal(s.model.Defaults(), snap)
}

func (s *EngineSuite) TestCleanupAfterResolutionKeepsValue() {
	s.Require().True(s.engine.Resolve("a", "abc"))
	s.engine.Cleanup()

	s.Equal(StateResolved, s.engine.State())
	snap, err := s.engine.Wait(context.Background())
	s.NoError(err)
	s.Equal("abc", snap.ConsentString)
}

func (s *EngineSuite) TestAddAfterResolutionDeactivatesImmediately() {
	s.Require().True(s.engine.Resolve("a", "abc"))

	late := mocks.NewMockRetriever(s.ctrl)
	late.EXPECT().Deactivate().Times(1)
	s.engine.Add(late)

	s.Empty(s.engine.Active())
}

func (s *EngineSuite) TestWaitTimesOut() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	snap, err := s.engine.Wait(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.True(errors.Is(err, context.DeadlineExceeded))
	s.Equal(s.model.Defaults(), snap)
}

func (s *EngineSuite) TestWaitReleasedByResolve() {
	go func() {
		time.Sleep(5 * time.Millisecond)
		s.engine.Resolve("async", map[string]any{"tcString": "late"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := s.engine.Wait(ctx)
	s.NoError(err)
	s.Equal("late", snap.ConsentString)
}

func (s *EngineSuite) TestConcurrentResolveHasSingleWinner() {
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.engine.Resolve("r", map[string]any{"tcfPolicyVersion": float64(i)}) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, winners)
}

// A retriever that resolves synchronously from Activate must not deadlock.
type syncRetriever struct {
	engine      *Engine
	deactivated int
}

func (r *syncRetriever) ID() string  { return "sync" }
func (r *syncRetriever) Activate()   { r.engine.Resolve("sync", "now") }
func (r *syncRetriever) Deactivate() { r.deactivated++ }

func (s *EngineSuite) TestSynchronousResolveFromActivate() {
	r := &syncRetriever{engine: s.engine}
	s.engine.Add(r)

	s.True(s.engine.Obtained())
	s.Equal("now", s.engine.Snapshot().ConsentString)
	s.Equal(1, r.deactivated)
}
