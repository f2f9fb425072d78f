package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil, "op"))
	assert.ErrorIs(t, mapErr(sql.ErrNoRows, "op"), repository.ErrNotFound)
	assert.ErrorIs(t, mapErr(&pq.Error{Code: uniqueViolation}, "op"), repository.ErrDuplicate)

	err := mapErr(stderrors.New("boom"), "failed to do thing")
	assert.EqualError(t, err, "failed to do thing: boom")
}

// openTestDB connects to INTAKE_TEST_DATABASE_URL; the integration tests
// below are skipped without it.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("INTAKE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("INTAKE_TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureSchema(context.Background(), db))
	return db
}

func TestAdvancePhaseIntegration(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	id := fmt.Sprintf("it-%d", time.Now().UnixNano())

	require.NoError(t, store.Projects.Create(ctx, &model.Project{
		Base:         model.Base{ID: id},
		CompanyID:    "c1",
		Name:         "Integratie",
		CurrentPhase: model.PhaseRuwbouw,
	}))

	event := &model.TimelineEvent{Base: model.Base{ID: id + "-ev"}, ProjectID: id, Type: model.EventPhaseTransition, Title: "t", Metadata: model.JSONMap{}}
	require.NoError(t, store.Projects.AdvancePhase(ctx, id, model.PhaseRuwbouw, model.PhaseDakconstructie, event))

	err := store.Projects.AdvancePhase(ctx, id, model.PhaseRuwbouw, model.PhaseDakconstructie, nil)
	assert.ErrorIs(t, err, repository.ErrStalePhase)

	p, err := store.Projects.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseDakconstructie, p.CurrentPhase)
}

func TestMessageDuplicateIntegration(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	provider := fmt.Sprintf("SM-%d", time.Now().UnixNano())

	msg := &model.InboundMessage{Base: model.Base{ID: provider + "-a"}, ProviderID: provider, Sender: "+31600000000", Status: model.MessageStatusReceived}
	require.NoError(t, store.Messages.Create(ctx, msg))

	dup := &model.InboundMessage{Base: model.Base{ID: provider + "-b"}, ProviderID: provider, Sender: "+31600000000", Status: model.MessageStatusReceived}
	assert.ErrorIs(t, store.Messages.Create(ctx, dup), repository.ErrDuplicate)
}
