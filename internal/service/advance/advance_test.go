package advance

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
	"github.com/bouwupdate/intake-api/internal/repository/memory"
	"github.com/bouwupdate/intake-api/internal/service/phase"
	"github.com/bouwupdate/intake-api/pkg/errors"
	"github.com/bouwupdate/intake-api/pkg/messaging"
)

type fixture struct {
	db     *memory.DB
	store  *repository.Store
	broker *messaging.MemoryBroker
	ctrl   *Controller
	seq    int
	base   time.Time
}

func newFixture(t *testing.T, current model.Phase) *fixture {
	t.Helper()
	db := memory.New()
	f := &fixture{
		db:     db,
		store:  db.Store(),
		broker: messaging.NewMemoryBroker(),
		base:   time.Now().Add(-time.Hour),
	}
	engine := phase.NewEngine(f.store.Documents, phase.DefaultThresholds())
	f.ctrl = NewController(f.store.Projects, engine, f.broker, nil)
	require.NoError(t, f.store.Projects.Create(context.Background(), &model.Project{
		Base:         model.Base{ID: "p1"},
		Name:         "Villa Zuid",
		CurrentPhase: current,
	}))
	return f
}

func (f *fixture) addDocs(t *testing.T, n int, p model.Phase, conf float64) {
	t.Helper()
	for i := 0; i < n; i++ {
		f.seq++
		d := &model.Document{
			Base:            model.Base{ID: fmt.Sprintf("d%03d", f.seq), CreatedAt: f.base.Add(time.Duration(f.seq) * time.Second)},
			ProjectID:       "p1",
			MediaKind:       model.MediaKindImage,
			Phase:           p,
			PhaseConfidence: conf,
			Classification:  model.ClassificationResult{PhaseID: string(p), Confidence: conf, Source: model.SourceModel},
		}
		d.Classification.Normalize()
		require.NoError(t, f.store.Documents.Create(context.Background(), d))
	}
}

func (f *fixture) transitions(t *testing.T) []*model.TimelineEvent {
	t.Helper()
	events, err := f.store.Timeline.ListByProject(context.Background(), "p1", 0)
	require.NoError(t, err)
	var out []*model.TimelineEvent
	for _, e := range events {
		if e.Type == model.EventPhaseTransition {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) phase(t *testing.T) model.Phase {
	t.Helper()
	p, err := f.store.Projects.Get(context.Background(), "p1")
	require.NoError(t, err)
	return p.EffectivePhase()
}

func TestEvaluateAdvancesOnceOnMajority(t *testing.T) {
	f := newFixture(t, model.PhaseRuwbouw)
	f.addDocs(t, 3, model.PhaseRuwbouw, 0.9)
	f.addDocs(t, 6, model.PhaseDakconstructie, 0.7)
	f.addDocs(t, 1, model.PhaseDakconstructie, 0.8)

	analysis, res, err := f.ctrl.Evaluate(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, analysis.Ready)
	assert.Equal(t, phase.PathMajority, analysis.Path)

	assert.True(t, res.Advanced)
	assert.Equal(t, model.PhaseRuwbouw, res.From)
	assert.Equal(t, model.PhaseDakconstructie, res.To)
	assert.Contains(t, res.Message, "Dakconstructie")
	assert.NoError(t, res.ScheduleErr)
	assert.Equal(t, model.PhaseDakconstructie, f.phase(t))

	events := f.transitions(t)
	require.Len(t, events, 1)
	assert.Equal(t, "RUWBOUW", events[0].Metadata["from_phase"])
	assert.Equal(t, "DAKCONSTRUCTIE", events[0].Metadata["to_phase"])
	assert.Equal(t, analysis.Reason, events[0].Metadata["reason"])

	// Same evidence again, e.g. a duplicate webhook delivery.
	_, res, err = f.ctrl.Evaluate(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.Len(t, f.transitions(t), 1)
	assert.Len(t, f.broker.Published(messaging.TopicPhaseAdvanced), 1)
}

func TestEvaluateNotReady(t *testing.T) {
	f := newFixture(t, model.PhaseRuwbouw)
	f.addDocs(t, 4, model.PhaseRuwbouw, 0.9)

	analysis, res, err := f.ctrl.Evaluate(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, analysis.Ready)
	assert.False(t, res.Advanced)
	assert.Empty(t, f.transitions(t))
}

func TestPhaseWriteFailureLeavesStateIntact(t *testing.T) {
	f := newFixture(t, model.PhaseRuwbouw)
	f.addDocs(t, 8, model.PhaseDakconstructie, 0.9)
	f.db.AdvanceErr = stderrors.New("connection reset")

	_, res, err := f.ctrl.Evaluate(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, errors.ErrPhaseWriteFailed, errors.CodeOf(err))
	assert.False(t, res.Advanced)
	assert.Empty(t, res.Message)
	assert.Equal(t, model.PhaseRuwbouw, f.phase(t))
	assert.Empty(t, f.transitions(t))
	assert.Empty(t, f.broker.Published(messaging.TopicPhaseAdvanced))
}

func TestScheduleSyncIsBestEffort(t *testing.T) {
	f := newFixture(t, model.PhaseRuwbouw)
	f.addDocs(t, 8, model.PhaseDakconstructie, 0.9)
	ctx := context.Background()
	require.NoError(t, f.store.Projects.SaveSchedulePhase(ctx, &model.ProjectPhase{
		Base: model.Base{ID: "s1"}, ProjectID: "p1", Phase: model.PhaseRuwbouw, Position: 3, Status: model.ProjectPhaseInProgress,
	}))
	f.db.ScheduleErr = stderrors.New("schedule table locked")

	_, res, err := f.ctrl.Evaluate(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, res.Advanced)
	assert.Error(t, res.ScheduleErr)
	assert.Equal(t, model.PhaseDakconstructie, f.phase(t))
	assert.Len(t, f.transitions(t), 1)
}

func TestScheduleSyncMarksPhases(t *testing.T) {
	f := newFixture(t, model.PhaseRuwbouw)
	f.addDocs(t, 8, model.PhaseDakconstructie, 0.9)
	ctx := context.Background()
	for i, p := range model.Phases {
		status := model.ProjectPhasePlanned
		switch {
		case p.Index() < model.PhaseRuwbouw.Index():
			status = model.ProjectPhaseCompleted
		case p == model.PhaseRuwbouw:
			status = model.ProjectPhaseInProgress
		}
		require.NoError(t, f.store.Projects.SaveSchedulePhase(ctx, &model.ProjectPhase{
			Base: model.Base{ID: fmt.Sprintf("s%d", i)}, ProjectID: "p1", Phase: p, Position: i, Status: status,
		}))
	}

	_, res, err := f.ctrl.Evaluate(ctx, "p1")
	require.NoError(t, err)
	require.True(t, res.Advanced)
	require.NoError(t, res.ScheduleErr)

	entries, err := f.store.Projects.ListSchedule(ctx, "p1")
	require.NoError(t, err)
	got := map[model.Phase]model.ProjectPhaseStatus{}
	for _, e := range entries {
		got[e.Phase] = e.Status
	}
	assert.Equal(t, model.ProjectPhaseCompleted, got[model.PhaseRuwbouw])
	assert.Equal(t, model.ProjectPhaseInProgress, got[model.PhaseDakconstructie])
	assert.Equal(t, model.ProjectPhasePlanned, got[model.PhaseGevel])
}

func TestConcurrentEvaluateAdvancesOnce(t *testing.T) {
	f := newFixture(t, model.PhaseRuwbouw)
	f.addDocs(t, 8, model.PhaseDakconstructie, 0.9)

	var wg sync.WaitGroup
	var mu sync.Mutex
	advanced := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, res, err := f.ctrl.Evaluate(context.Background(), "p1")
			assert.NoError(t, err)
			if res.Advanced {
				mu.Lock()
				advanced++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, advanced)
	assert.Len(t, f.transitions(t), 1)
}

func TestPhaseNeverRegresses(t *testing.T) {
	f := newFixture(t, model.PhaseGrondwerk)
	prev := f.phase(t).Index()

	for _, p := range model.Phases {
		f.addDocs(t, 6, p, 0.85)
		_, _, err := f.ctrl.Evaluate(context.Background(), "p1")
		require.NoError(t, err)

		cur := f.phase(t).Index()
		assert.GreaterOrEqual(t, cur, prev, "phase moved backward after %s evidence", p)
		prev = cur
	}
	assert.Equal(t, model.PhaseOplevering, f.phase(t))

	// Stale evidence from an earlier phase must not pull the project back.
	f.addDocs(t, 10, model.PhaseFundering, 0.95)
	_, res, err := f.ctrl.Evaluate(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.Equal(t, model.PhaseOplevering, f.phase(t))
}
