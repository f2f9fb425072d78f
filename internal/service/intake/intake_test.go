package intake

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/service/media"
	"github.com/bouwupdate/intake-api/internal/service/sender"
	"github.com/bouwupdate/intake-api/internal/testsupport"
	"github.com/bouwupdate/intake-api/pkg/security"
	"github.com/bouwupdate/intake-api/pkg/worker"
)

type mockMedia struct{ mock.Mock }

func (m *mockMedia) Process(ctx context.Context, msg *model.InboundMessage, ch *model.Channel) (*media.Result, error) {
	args := m.Called(ctx, msg, ch)
	res, _ := args.Get(0).(*media.Result)
	return res, args.Error(1)
}

type mockVoice struct{ mock.Mock }

func (m *mockVoice) Process(ctx context.Context, msg *model.InboundMessage, ch *model.Channel) (*model.VoiceNote, error) {
	args := m.Called(ctx, msg, ch)
	note, _ := args.Get(0).(*model.VoiceNote)
	return note, args.Error(1)
}

type commandFunc func(text string) (string, error)

func (f commandFunc) Handle(_ context.Context, text string, _ *model.Channel) (string, error) {
	return f(text)
}

type fixture struct {
	*testsupport.Fixture
	transport *testsupport.Transport
	media     *mockMedia
	voice     *mockVoice
	gate      *sender.Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		Fixture:   testsupport.NewFixture(t),
		transport: testsupport.NewTransport(),
		media:     &mockMedia{},
		voice:     &mockVoice{},
	}
	f.gate = sender.NewGate(f.Store, security.NewBcryptHasher(bcrypt.MinCost), f.transport, sender.Config{}, nil)
	f.VerifiedChannel(t, "+31611111111", "Jan")
	return f
}

func (f *fixture) dispatcher(opts ...Option) *Dispatcher {
	cmds := commandFunc(func(text string) (string, error) {
		if text == "help" {
			return "hulp-tekst", nil
		}
		return "", nil
	})
	return NewDispatcher(f.Store.Messages, f.gate, f.media, f.voice, cmds, f.transport, nil, opts...)
}

func (f *fixture) status(t *testing.T, id string) *model.InboundMessage {
	t.Helper()
	msg, err := f.Store.Messages.Get(context.Background(), id)
	require.NoError(t, err)
	return msg
}

func TestUnknownSenderFails(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher()

	msg, dup, err := d.Receive(context.Background(), Inbound{ProviderID: "SM1", From: "whatsapp:+31699999999", Body: "hallo"})
	require.NoError(t, err)
	assert.False(t, dup)

	stored := f.status(t, msg.ID)
	assert.Equal(t, model.MessageStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Nil(t, stored.ProjectID)
	sent := f.transport.Sent("+31699999999")
	require.Len(t, sent, 1)
	assert.Equal(t, sender.ReplyUnknownSender, sent[0].Text)
}

func TestDuplicateDeliveryIsNotReprocessed(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher()
	ctx := context.Background()
	in := Inbound{ProviderID: "SM2", From: "whatsapp:+31611111111", Body: "help"}

	first, dup, err := d.Receive(ctx, in)
	require.NoError(t, err)
	assert.False(t, dup)

	second, dup, err := d.Receive(ctx, in)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.transport.Sent("+31611111111"), 1)
}

func TestTextCommands(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher()
	ctx := context.Background()

	msg, _, err := d.Receive(ctx, Inbound{ProviderID: "SM3", From: "+31611111111", Body: "help"})
	require.NoError(t, err)
	stored := f.status(t, msg.ID)
	assert.Equal(t, model.MessageStatusProcessed, stored.Status)
	require.NotNil(t, stored.ProjectID)
	assert.Equal(t, f.ProjectID, *stored.ProjectID)
	require.Len(t, f.transport.Sent(""), 1)
	assert.Equal(t, "hulp-tekst", f.transport.Sent("")[0].Text)

	msg, _, err = d.Receive(ctx, Inbound{ProviderID: "SM4", From: "+31611111111", Body: "mooi weer vandaag"})
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusProcessed, f.status(t, msg.ID).Status)
	assert.Len(t, f.transport.Sent(""), 1, "unrecognized text gets no reply")
}

func TestMediaRouting(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher()
	ctx := context.Background()

	f.media.On("Process", mock.Anything, mock.MatchedBy(func(m *model.InboundMessage) bool {
		return m.MediaKind == model.MediaKindImage && m.Status == model.MessageStatusProcessing
	}), mock.Anything).Return(&media.Result{}, nil).Once()
	f.voice.On("Process", mock.Anything, mock.MatchedBy(func(m *model.InboundMessage) bool {
		return m.MediaKind == model.MediaKindAudio
	}), mock.Anything).Return(&model.VoiceNote{}, nil).Once()

	photo, _, err := d.Receive(ctx, Inbound{ProviderID: "SM5", From: "+31611111111", MediaURL: "https://m/1", MediaType: "image/jpeg"})
	require.NoError(t, err)
	voice, _, err := d.Receive(ctx, Inbound{ProviderID: "SM6", From: "+31611111111", MediaURL: "https://m/2", MediaType: "audio/ogg"})
	require.NoError(t, err)

	assert.Equal(t, model.MessageStatusProcessed, f.status(t, photo.ID).Status)
	assert.Equal(t, model.MessageStatusProcessed, f.status(t, voice.ID).Status)
	f.media.AssertExpectations(t)
	f.voice.AssertExpectations(t)
}

func TestProcessingFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher()
	f.media.On("Process", mock.Anything, mock.Anything, mock.Anything).Return(nil, stderrors.New("database down"))

	msg, _, err := d.Receive(context.Background(), Inbound{ProviderID: "SM7", From: "+31611111111", MediaURL: "https://m/1", MediaType: "image/png"})
	require.NoError(t, err)

	stored := f.status(t, msg.ID)
	assert.Equal(t, model.MessageStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "database down")
	require.Len(t, f.transport.Sent(""), 1)
	assert.Equal(t, ReplyProcessingFailed, f.transport.Sent("")[0].Text)

	d.Process(context.Background(), msg.ID)
	f.media.AssertNumberOfCalls(t, "Process", 1)
}

func TestPoolProcessesInBackground(t *testing.T) {
	f := newFixture(t)
	pool := worker.NewPool(2, 10, nil)
	d := f.dispatcher(WithPool(pool))

	msg, _, err := d.Receive(context.Background(), Inbound{ProviderID: "SM8", From: "+31611111111", Body: "help"})
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusReceived, msg.Status)

	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, model.MessageStatusProcessed, f.status(t, msg.ID).Status)
}

func TestRedeliveryAfterScheduleFailureIsProcessed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := Inbound{ProviderID: "SM10", From: "+31611111111", Body: "help"}

	closed := worker.NewPool(1, 1, nil)
	require.NoError(t, closed.Stop(ctx))
	msg, dup, err := f.dispatcher(WithPool(closed)).Receive(ctx, in)
	require.ErrorIs(t, err, worker.ErrPoolClosed)
	assert.False(t, dup)
	assert.Equal(t, model.MessageStatusReceived, f.status(t, msg.ID).Status)

	// The provider retries the same MessageSid against a running process.
	again, dup, err := f.dispatcher().Receive(ctx, in)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, msg.ID, again.ID)
	assert.Equal(t, model.MessageStatusProcessed, f.status(t, msg.ID).Status)
	assert.Len(t, f.transport.Sent("+31611111111"), 1)

	_, dup, err = f.dispatcher().Receive(ctx, in)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Len(t, f.transport.Sent("+31611111111"), 1, "processed message is not run again")
}

func TestProcessRunsOnlyFromReceived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := &model.InboundMessage{
		Base:       model.Base{ID: "msg-claimed"},
		ProviderID: "SM11",
		Sender:     "+31611111111",
		Text:       "help",
		Status:     model.MessageStatusReceived,
	}
	require.NoError(t, f.Store.Messages.Create(ctx, msg))

	// Another process already picked the message up.
	started, err := f.Store.Messages.StartProcessing(ctx, msg.ID, msg.CreatedAt)
	require.NoError(t, err)
	require.True(t, started)

	d := f.dispatcher()
	d.Process(ctx, msg.ID)
	assert.Empty(t, f.transport.Sent(""))
	assert.Equal(t, model.MessageStatusProcessing, f.status(t, msg.ID).Status)
}

func TestRecoverSchedulesStaleReceivedMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clock := testsupport.NewClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	closed := worker.NewPool(1, 1, nil)
	require.NoError(t, closed.Stop(ctx))
	stale, _, err := f.dispatcher(WithPool(closed), WithClock(clock.Now)).Receive(ctx, Inbound{ProviderID: "SM12", From: "+31611111111", Body: "help"})
	require.Error(t, err)

	d := f.dispatcher(WithClock(clock.Now))
	n, err := d.Recover(ctx, clock.Now(), 10)
	require.NoError(t, err)
	assert.Zero(t, n, "messages younger than the cutoff are left to their owner")

	clock.Advance(time.Minute)
	n, err = d.Recover(ctx, clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.MessageStatusProcessed, f.status(t, stale.ID).Status)

	n, err = d.Recover(ctx, clock.Now(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReceiveRequiresSender(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.dispatcher().Receive(context.Background(), Inbound{ProviderID: "SM9", Body: "hoi"})
	assert.Error(t, err)
}
