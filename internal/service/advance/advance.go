// Package advance applies phase inference decisions to a project. A decision
// is applied by recomputing it against the freshly read project state under a
// per-project lock, so a repeated signal finds the phase already moved and
// does nothing.
package advance

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
	"github.com/bouwupdate/intake-api/internal/service/phase"
	"github.com/bouwupdate/intake-api/pkg/errors"
	"github.com/bouwupdate/intake-api/pkg/keylock"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/messaging"
	"github.com/bouwupdate/intake-api/pkg/metrics"
)

// Result separates the primary phase write from the best-effort schedule sync.
type Result struct {
	Advanced    bool
	From        model.Phase
	To          model.Phase
	Event       *model.TimelineEvent
	Message     string
	ScheduleErr error
}

// PhaseAdvancedEvent is published after a successful advance.
type PhaseAdvancedEvent struct {
	ProjectID  string      `json:"project_id"`
	From       model.Phase `json:"from"`
	To         model.Phase `json:"to"`
	Path       phase.Path  `json:"path"`
	Confidence float64     `json:"confidence"`
	Reason     string      `json:"reason"`
	EventID    string      `json:"event_id"`
	At         time.Time   `json:"at"`
}

type Controller struct {
	projects  repository.ProjectRepository
	engine    *phase.Engine
	locks     *keylock.Locker
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func NewController(
	projects repository.ProjectRepository,
	engine *phase.Engine,
	publisher messaging.Publisher,
	log *logger.Logger,
	opts ...Option,
) *Controller {
	if publisher == nil {
		publisher = messaging.NopBroker{}
	}
	if log == nil {
		log = logger.Nop()
	}
	c := &Controller{
		projects:  projects,
		engine:    engine,
		locks:     keylock.New(),
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Evaluate re-reads the project, analyzes its recent window and applies the
// decision, all while holding the project's lock.
func (c *Controller) Evaluate(ctx context.Context, projectID string) (*phase.Analysis, Result, error) {
	unlock := c.locks.Lock(projectID)
	defer unlock()

	project, err := c.projects.Get(ctx, projectID)
	if err != nil {
		return nil, Result{}, fmt.Errorf("load project %s: %w", projectID, err)
	}

	analysis, err := c.engine.Analyze(ctx, project)
	if err != nil {
		return nil, Result{}, err
	}
	if !analysis.Ready {
		return analysis, Result{}, nil
	}

	res, err := c.apply(ctx, project, analysis)
	return analysis, res, err
}

// Status returns a fresh analysis without applying it.
func (c *Controller) Status(ctx context.Context, projectID string) (*model.Project, *phase.Analysis, error) {
	project, err := c.projects.Get(ctx, projectID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, nil, errors.NotFound("project", err)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	analysis, err := c.engine.Analyze(ctx, project)
	if err != nil {
		return nil, nil, err
	}
	return project, analysis, nil
}

func (c *Controller) apply(ctx context.Context, project *model.Project, a *phase.Analysis) (Result, error) {
	from, to := project.EffectivePhase(), a.SuggestedPhase
	if !to.Valid() || !to.After(from) {
		return Result{}, nil
	}

	now := c.now().UTC()
	event := &model.TimelineEvent{
		Base:        model.Base{ID: uuid.NewString(), CreatedAt: now},
		ProjectID:   project.ID,
		Type:        model.EventPhaseTransition,
		Title:       fmt.Sprintf("Fase gewijzigd: %s → %s", from.Label(), to.Label()),
		Description: a.Reason,
		Phase:       to,
		Metadata: model.JSONMap{
			"from_phase":            string(from),
			"to_phase":              string(to),
			"confidence":            a.Confidence,
			"path":                  string(a.Path),
			"reason":                a.Reason,
			"next_ratio":            a.NextRatio,
			"window_size":           a.WindowSize,
			"completion_indicators": a.CompletionIndicators,
			"detected_phases":       a.DetectedPhases,
		},
	}

	log := c.logger.WithContext(ctx)
	if err := c.projects.AdvancePhase(ctx, project.ID, from, to, event); err != nil {
		if stderrors.Is(err, repository.ErrStalePhase) {
			log.Info("Phase already moved, skipping advance", "project_id", project.ID, "from", string(from), "to", string(to))
			return Result{}, nil
		}
		c.metrics.PhaseWriteFailed()
		log.Error(err, "Phase write failed", "project_id", project.ID, "from", string(from), "to", string(to))
		return Result{}, errors.PhaseWriteFailed(project.ID, err)
	}
	project.CurrentPhase = to
	project.PhaseUpdatedAt = &now
	c.metrics.PhaseAdvanced(string(a.Path))

	res := Result{
		Advanced: true,
		From:     from,
		To:       to,
		Event:    event,
		Message:  TransitionMessage(project, from, to, a.Reason),
	}

	if err := c.syncSchedule(ctx, project.ID, to, now); err != nil {
		res.ScheduleErr = err
		log.Warn("Schedule sync failed", "project_id", project.ID, "to", string(to), "error", err.Error())
	}

	if err := c.publisher.Publish(ctx, messaging.TopicPhaseAdvanced, PhaseAdvancedEvent{
		ProjectID:  project.ID,
		From:       from,
		To:         to,
		Path:       a.Path,
		Confidence: a.Confidence,
		Reason:     a.Reason,
		EventID:    event.ID,
		At:         now,
	}); err != nil {
		log.Warn("Failed to publish phase event", "project_id", project.ID, "error", err.Error())
	}

	log.Info("Project phase advanced", "project_id", project.ID, "from", string(from), "to", string(to), "path", string(a.Path))
	return res, nil
}

// syncSchedule completes every scheduled phase before to and starts to.
func (c *Controller) syncSchedule(ctx context.Context, projectID string, to model.Phase, now time.Time) error {
	entries, err := c.projects.ListSchedule(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list schedule: %w", err)
	}

	var firstErr error
	save := func(e *model.ProjectPhase) {
		if err := c.projects.SaveSchedulePhase(ctx, e); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("save schedule phase %s: %w", e.Phase, err)
		}
	}

	for _, e := range entries {
		switch {
		case to.After(e.Phase) && e.Status != model.ProjectPhaseCompleted:
			e.Status = model.ProjectPhaseCompleted
			e.CompletedAt = &now
			save(e)
		case e.Phase == to && e.Status != model.ProjectPhaseInProgress:
			e.Status = model.ProjectPhaseInProgress
			if e.StartedAt == nil {
				e.StartedAt = &now
			}
			save(e)
		}
	}
	return firstErr
}

// TransitionMessage is the reply sent to the submitter after an advance.
func TransitionMessage(project *model.Project, from, to model.Phase, reason string) string {
	name := project.Name
	if name == "" {
		name = "het project"
	}
	return fmt.Sprintf("Fase-update voor %s: %s is afgerond, de bouw zit nu in de fase %s.\n%s",
		name, from.Label(), to.Label(), reason)
}
