package voicenote

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/service/transcriber"
	"github.com/bouwupdate/intake-api/internal/testsupport"
)

const audioURL = "https://media.example/audio-1"

var photoAt = time.Date(2024, 4, 10, 14, 0, 0, 0, time.UTC)

type fixture struct {
	*testsupport.Fixture
	transport   *testsupport.Transport
	transcriber *testsupport.Transcriber
	channel     *model.Channel
	proc        *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		Fixture:   testsupport.NewFixture(t),
		transport: testsupport.NewTransport(),
		transcriber: &testsupport.Transcriber{Transcript: &transcriber.Transcript{
			Text:     "De spouwmuur is klaar",
			Duration: 12 * time.Second,
			Language: "nl",
		}},
	}
	f.channel = f.VerifiedChannel(t, "+31611111111", "Jan")
	f.proc = NewProcessor(f.Store, f.transport, f.transcriber, Config{}, nil)
	f.transport.AddMedia(audioURL, make([]byte, 9000))
	return f
}

func (f *fixture) photo(t *testing.T, status model.MessageStatus) *model.Document {
	t.Helper()
	ctx := context.Background()
	msg := &model.InboundMessage{
		Base:      model.Base{ID: "msg-photo", CreatedAt: photoAt},
		Sender:    f.channel.Phone,
		MediaURL:  "https://media.example/photo",
		MediaType: "image/jpeg",
		MediaKind: model.MediaKindImage,
		Status:    status,
	}
	require.NoError(t, f.Store.Messages.Create(ctx, msg))
	doc := &model.Document{
		Base:           model.Base{ID: "doc-photo", CreatedAt: photoAt},
		ProjectID:      f.ProjectID,
		MessageID:      msg.ID,
		Sender:         f.channel.Phone,
		MediaKind:      model.MediaKindImage,
		Classification: model.EmptyClassification(),
	}
	require.NoError(t, f.Store.Documents.Create(ctx, doc))
	return doc
}

func (f *fixture) voice(after time.Duration) *model.InboundMessage {
	return &model.InboundMessage{
		Base:      model.Base{ID: "msg-voice", CreatedAt: photoAt.Add(after)},
		Sender:    f.channel.Phone,
		MediaURL:  audioURL,
		MediaType: "audio/ogg; codecs=opus",
		MediaKind: model.MediaKindAudio,
	}
}

func TestVoiceNoteLinksRecentPhoto(t *testing.T) {
	f := newFixture(t)
	doc := f.photo(t, model.MessageStatusProcessed)

	note, err := f.proc.Process(context.Background(), f.voice(3*time.Minute), f.channel)
	require.NoError(t, err)
	require.NotNil(t, note.LinkedDocumentID)
	assert.Equal(t, doc.ID, *note.LinkedDocumentID)
	require.NotNil(t, note.Transcript)
	assert.Equal(t, "De spouwmuur is klaar", *note.Transcript)
	assert.Equal(t, 12.0, note.DurationSeconds)
	assert.False(t, note.DurationEstimated)

	stored, err := f.Store.VoiceNotes.Get(context.Background(), note.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, *stored.LinkedDocumentID)

	sent := f.transport.Sent(f.channel.Phone)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "Gekoppeld aan je laatste foto")
}

func TestVoiceNoteOutsideWindowIsNotLinked(t *testing.T) {
	f := newFixture(t)
	f.photo(t, model.MessageStatusProcessed)

	note, err := f.proc.Process(context.Background(), f.voice(10*time.Minute), f.channel)
	require.NoError(t, err)
	assert.Nil(t, note.LinkedDocumentID)
}

func TestVoiceNoteIgnoresUnprocessedPhoto(t *testing.T) {
	f := newFixture(t)
	f.photo(t, model.MessageStatusFailed)

	note, err := f.proc.Process(context.Background(), f.voice(time.Minute), f.channel)
	require.NoError(t, err)
	assert.Nil(t, note.LinkedDocumentID)
}

func TestVoiceNoteIgnoresLaterPhoto(t *testing.T) {
	f := newFixture(t)
	// The photo was sent after the voice note but finished processing first.
	f.photo(t, model.MessageStatusProcessed)

	note, err := f.proc.Process(context.Background(), f.voice(-time.Minute), f.channel)
	require.NoError(t, err)
	assert.Nil(t, note.LinkedDocumentID)
}

func TestTranscriptionFailureKeepsAudio(t *testing.T) {
	f := newFixture(t)
	f.transcriber.Err = &transcriber.TranscriptionError{Stage: transcriber.StageRequest, Err: stderrors.New("timeout")}

	note, err := f.proc.Process(context.Background(), f.voice(time.Minute), f.channel)
	require.NoError(t, err)
	assert.Nil(t, note.Transcript)
	assert.Equal(t, audioURL, note.AudioURL)
	assert.True(t, note.DurationEstimated)
	assert.Equal(t, 4.0, note.DurationSeconds)

	sent := f.transport.Sent(f.channel.Phone)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "niet worden uitgeschreven")
}

func TestDownloadFailureStillStoresNote(t *testing.T) {
	f := newFixture(t)
	msg := f.voice(time.Minute)
	msg.MediaURL = "https://media.example/gone"

	note, err := f.proc.Process(context.Background(), msg, f.channel)
	require.NoError(t, err)
	assert.Nil(t, note.Transcript)
	assert.Equal(t, "https://media.example/gone", note.AudioURL)
	assert.Zero(t, note.DurationSeconds)
}
