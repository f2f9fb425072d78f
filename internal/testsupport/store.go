package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
	"github.com/bouwupdate/intake-api/internal/repository/memory"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Fixture is a memory store seeded with one project.
type Fixture struct {
	DB        *memory.DB
	Store     *repository.Store
	ProjectID string
	CompanyID string
}

func NewFixture(t testing.TB) *Fixture {
	t.Helper()
	db := memory.New()
	f := &Fixture{DB: db, Store: db.Store(), ProjectID: "proj-1", CompanyID: "comp-1"}
	require.NoError(t, f.Store.Projects.Create(context.Background(), &model.Project{
		Base:         model.Base{ID: f.ProjectID},
		CompanyID:    f.CompanyID,
		Name:         "Villa Zuid",
		Address:      "Dorpsstraat 1, Utrecht",
		CurrentPhase: model.PhaseRuwbouw,
	}))
	return f
}

// VerifiedChannel stores an active, verified channel for phone.
func (f *Fixture) VerifiedChannel(t testing.TB, phone, worker string) *model.Channel {
	t.Helper()
	now := time.Now().UTC()
	ch := &model.Channel{
		Base:       model.Base{ID: "ch-" + phone},
		Phone:      phone,
		ProjectID:  f.ProjectID,
		CompanyID:  f.CompanyID,
		WorkerName: worker,
		Verified:   true,
		VerifiedAt: &now,
		Active:     true,
	}
	require.NoError(t, f.Store.Channels.Create(context.Background(), ch))
	return ch
}

// Member stores an active team member on the fixture project.
func (f *Fixture) Member(t testing.TB, id, name, phone, email string) *model.TeamMember {
	t.Helper()
	m := &model.TeamMember{
		Base:      model.Base{ID: id},
		ProjectID: f.ProjectID,
		Name:      name,
		Phone:     phone,
		Email:     email,
		Active:    true,
	}
	require.NoError(t, f.Store.TeamMembers.Create(context.Background(), m))
	return m
}

// Issue stores an open issue on the fixture project.
func (f *Fixture) Issue(t testing.TB, id, title string) *model.Issue {
	t.Helper()
	i := &model.Issue{
		Base:      model.Base{ID: id},
		ProjectID: f.ProjectID,
		Title:     title,
		Severity:  model.SeverityMedium,
		Status:    model.IssueStatusOpen,
	}
	require.NoError(t, f.Store.Issues.Create(context.Background(), i))
	return i
}
