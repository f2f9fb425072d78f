package media

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/service/advance"
	"github.com/bouwupdate/intake-api/internal/service/issue"
	"github.com/bouwupdate/intake-api/internal/service/phase"
	"github.com/bouwupdate/intake-api/internal/testsupport"
	"github.com/bouwupdate/intake-api/pkg/storage"
)

const photoURL = "https://media.example/photo-1"

type fixture struct {
	*testsupport.Fixture
	transport  *testsupport.Transport
	classifier *testsupport.Classifier
	archive    *storage.Memory
	channel    *model.Channel
	proc       *Processor
	waits      []time.Duration
	seq        int
}

func newFixture(t *testing.T, result model.ClassificationResult) *fixture {
	t.Helper()
	f := &fixture{
		Fixture:    testsupport.NewFixture(t),
		transport:  testsupport.NewTransport(),
		classifier: &testsupport.Classifier{Result: result},
		archive:    storage.NewMemory("mem://"),
	}
	f.channel = f.VerifiedChannel(t, "+31611111111", "Jan")
	engine := phase.NewEngine(f.Store.Documents, phase.DefaultThresholds())
	issues := issue.NewService(f.Store, nil, nil, nil)
	ctrl := advance.NewController(f.Store.Projects, engine, nil, nil)
	f.proc = NewProcessor(f.Store, f.transport, f.classifier, engine, issues, ctrl,
		Config{FeedbackDelay: 3 * time.Second}, nil, WithArchive(f.archive))
	f.proc.wait = func(_ context.Context, d time.Duration) error {
		f.waits = append(f.waits, d)
		return nil
	}
	return f
}

func (f *fixture) message(t *testing.T, url, mime, text string) *model.InboundMessage {
	t.Helper()
	f.seq++
	projectID := f.ProjectID
	channelID := f.channel.ID
	m := &model.InboundMessage{
		Base:       model.Base{ID: "msg-" + string(rune('a'+f.seq))},
		ProviderID: "SM" + string(rune('a'+f.seq)),
		Sender:     f.channel.Phone,
		ProjectID:  &projectID,
		ChannelID:  &channelID,
		Text:       text,
		MediaURL:   url,
		MediaType:  mime,
		MediaKind:  model.MediaKindFromMIME(mime),
		Status:     model.MessageStatusProcessing,
	}
	require.NoError(t, f.Store.Messages.Create(context.Background(), m))
	return m
}

func TestProcessClassifiedPhoto(t *testing.T) {
	f := newFixture(t, model.ClassificationResult{
		PhaseID:     "RUWBOUW",
		Title:       "Metselwerk binnenspouw",
		Description: "Metselwerk van de binnenspouw is bijna klaar",
		Confidence:  0.8,
		Quality:     model.QualityAssessment{Score: 7, Issues: []string{"Ontbrekende veiligheid bij steiger"}},
		Source:      model.SourceModel,
	})
	f.transport.AddMedia(photoURL, []byte("jpeg"))

	res, err := f.proc.Process(context.Background(), f.message(t, photoURL, "image/jpeg", "binnenspouw"), f.channel)
	require.NoError(t, err)

	doc := res.Document
	assert.Equal(t, model.PhaseRuwbouw, doc.Phase)
	assert.GreaterOrEqual(t, doc.PhaseConfidence, 0.8)
	assert.LessOrEqual(t, doc.PhaseConfidence, 0.95)
	assert.Equal(t, phase.RuleBoost, res.Fusion.Rule)
	assert.Equal(t, "Metselwerk binnenspouw", doc.Name)
	assert.Equal(t, "Jan", doc.SubmittedBy)
	assert.True(t, strings.HasPrefix(doc.FileURL, "mem://projects/"+f.ProjectID))

	stored, err := f.Store.Documents.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Phase, stored.Phase)

	require.NotNil(t, res.Event)
	assert.Equal(t, model.EventStructuralWork, res.Event.Type)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, model.SeverityCritical, res.Issues[0].Severity)

	assert.False(t, res.Advance.Advanced)
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0], "Fase: Ruwbouw")
	assert.Contains(t, res.Replies[0], "1 aandachtspunt")
	assert.Len(t, f.transport.Sent(f.channel.Phone), 1)
	assert.Equal(t, 1, f.classifier.Calls())
	assert.Empty(t, f.waits)
}

func TestDownloadFailureKeepsSubmission(t *testing.T) {
	f := newFixture(t, model.ClassificationResult{PhaseID: "RUWBOUW", Confidence: 0.9, Source: model.SourceModel})

	res, err := f.proc.Process(context.Background(), f.message(t, "https://media.example/missing", "image/jpeg", ""), f.channel)
	require.NoError(t, err)

	assert.False(t, res.Document.Classified())
	assert.Equal(t, model.SourceEmpty, res.Document.Classification.Source)
	assert.Equal(t, "https://media.example/missing", res.Document.FileURL)
	assert.Empty(t, res.Document.Phase)
	assert.True(t, strings.HasPrefix(res.Document.Name, "Foto "))
	assert.Zero(t, f.classifier.Calls())
	assert.Nil(t, res.Analysis)
	require.NotNil(t, res.Event)
	assert.Equal(t, model.EventPhotoUpdate, res.Event.Type)
	require.Len(t, f.transport.Sent(""), 1)
}

func TestVideoIsStoredWithoutClassification(t *testing.T) {
	f := newFixture(t, model.ClassificationResult{PhaseID: "RUWBOUW", Confidence: 0.9, Source: model.SourceModel})
	f.transport.AddMedia("https://media.example/video", []byte("mp4"))

	res, err := f.proc.Process(context.Background(), f.message(t, "https://media.example/video", "video/mp4", ""), f.channel)
	require.NoError(t, err)
	assert.Equal(t, model.MediaKindVideo, res.Document.MediaKind)
	assert.False(t, res.Document.Classified())
	assert.Zero(t, f.classifier.Calls())
	assert.True(t, strings.HasSuffix(res.Document.FileURL, ".mp4"))
}

func TestNextPhasePhotoAdvancesOnce(t *testing.T) {
	f := newFixture(t, model.ClassificationResult{
		PhaseID:     "DAKCONSTRUCTIE",
		Title:       "Dakpannen",
		Description: "Dakpannen worden gelegd",
		Confidence:  0.8,
		Source:      model.SourceModel,
	})
	f.transport.AddMedia(photoURL, []byte("jpeg"))
	ctx := context.Background()

	res, err := f.proc.Process(ctx, f.message(t, photoURL, "image/jpeg", ""), f.channel)
	require.NoError(t, err)
	require.True(t, res.Advance.Advanced)
	assert.Equal(t, model.PhaseRuwbouw, res.Advance.From)
	assert.Equal(t, model.PhaseDakconstructie, res.Advance.To)

	require.Len(t, res.Replies, 2)
	assert.Contains(t, res.Replies[1], "Dakconstructie")
	assert.Equal(t, []time.Duration{3 * time.Second}, f.waits)
	assert.Len(t, f.transport.Sent(f.channel.Phone), 2)

	res, err = f.proc.Process(ctx, f.message(t, photoURL, "image/jpeg", ""), f.channel)
	require.NoError(t, err)
	assert.False(t, res.Advance.Advanced)

	project, err := f.Store.Projects.Get(ctx, f.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseDakconstructie, project.CurrentPhase)
}

func TestFeedbackForUnclassifiedVideo(t *testing.T) {
	doc := &model.Document{MediaKind: model.MediaKindVideo, Classification: model.EmptyClassification()}
	assert.Equal(t, "Bestand ontvangen en opgeslagen bij het project.", Feedback(doc, nil))
}
