package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/service/advance"
	"github.com/bouwupdate/intake-api/internal/service/phase"
	"github.com/bouwupdate/intake-api/internal/testsupport"
)

func newInterpreter(t *testing.T) (*testsupport.Fixture, *Interpreter, *model.Channel) {
	t.Helper()
	f := testsupport.NewFixture(t)
	engine := phase.NewEngine(f.Store.Documents, phase.DefaultThresholds())
	ctrl := advance.NewController(f.Store.Projects, engine, nil, nil)
	ch := f.VerifiedChannel(t, "+31611111111", "Jan")
	return f, NewInterpreter(ctrl, f.Store.Issues), ch
}

func TestParse(t *testing.T) {
	tests := map[string]Command{
		"status":        CommandStatus,
		"  Voortgang ":  CommandStatus,
		"FASE":          CommandPhase,
		"phase?":        CommandPhase,
		"/help":         CommandHelp,
		"hulp!":         CommandHelp,
		"problemen":     CommandIssues,
		"status graag":  CommandStatus,
		"hoe staat het": CommandNone,
		"":              CommandNone,
	}
	for in, want := range tests {
		assert.Equal(t, want, Parse(in), in)
	}
}

func TestHandleHelp(t *testing.T) {
	_, in, ch := newInterpreter(t)
	reply, err := in.Handle(context.Background(), "HULP", ch)
	require.NoError(t, err)
	assert.Contains(t, reply, "Beschikbare commando's")
}

func TestHandleUnknownIsSilent(t *testing.T) {
	_, in, ch := newInterpreter(t)
	reply, err := in.Handle(context.Background(), "goedemorgen allemaal", ch)
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestHandleStatus(t *testing.T) {
	f, in, ch := newInterpreter(t)
	f.Issue(t, "i1", "Scheur in muur")
	f.Issue(t, "i2", "Kozijn scheef")

	reply, err := in.Handle(context.Background(), "status", ch)
	require.NoError(t, err)
	assert.Contains(t, reply, "Villa Zuid")
	assert.Contains(t, reply, "Fase: Ruwbouw (3 van 8)")
	assert.Contains(t, reply, "Volgende fase: Dakconstructie")
	assert.Contains(t, reply, "Openstaande meldingen: 2")
}

func TestHandlePhaseWithoutPhotos(t *testing.T) {
	_, in, ch := newInterpreter(t)
	reply, err := in.Handle(context.Background(), "fase", ch)
	require.NoError(t, err)
	assert.Contains(t, reply, "Huidige fase: Ruwbouw")
	assert.Contains(t, reply, "Nog geen beoordeelde foto's")
}

func TestHandlePhaseBreakdown(t *testing.T) {
	f, in, ch := newInterpreter(t)
	for i, p := range []model.Phase{model.PhaseRuwbouw, model.PhaseRuwbouw, model.PhaseDakconstructie} {
		d := &model.Document{
			Base:            model.Base{ID: string(rune('a' + i))},
			ProjectID:       f.ProjectID,
			MediaKind:       model.MediaKindImage,
			Phase:           p,
			PhaseConfidence: 0.5,
			Classification:  model.ClassificationResult{PhaseID: string(p), Confidence: 0.5, Source: model.SourceModel},
		}
		require.NoError(t, f.Store.Documents.Create(context.Background(), d))
	}

	reply, err := in.Handle(context.Background(), "phase", ch)
	require.NoError(t, err)
	assert.Contains(t, reply, "- Ruwbouw: 2×")
	assert.Contains(t, reply, "- Dakconstructie: 1×")
	assert.Contains(t, reply, "Aandeel Dakconstructie: 33%")
}

func TestIssuesText(t *testing.T) {
	assert.Equal(t, "Er zijn geen openstaande meldingen.", IssuesText(nil))

	var issues []*model.Issue
	for i := 0; i < 7; i++ {
		issues = append(issues, &model.Issue{Title: "Melding", Severity: model.SeverityHigh})
	}
	text := IssuesText(issues)
	assert.Contains(t, text, "Openstaande meldingen (7)")
	assert.Contains(t, text, "[hoog] Melding")
	assert.Contains(t, text, "… en nog 2")
}
