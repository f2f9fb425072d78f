package sender

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/testsupport"
	"github.com/bouwupdate/intake-api/pkg/errors"
	"github.com/bouwupdate/intake-api/pkg/security"
)

type fixture struct {
	*testsupport.Fixture
	transport *testsupport.Transport
	clock     *testsupport.Clock
	gate      *Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		Fixture:   testsupport.NewFixture(t),
		transport: testsupport.NewTransport(),
		clock:     testsupport.NewClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.gate = NewGate(f.Store, security.NewBcryptHasher(bcrypt.MinCost), f.transport, Config{}, nil, WithClock(f.clock.Now))
	return f
}

func msg(sender, text string) *model.InboundMessage {
	return &model.InboundMessage{Sender: sender, Text: text}
}

func TestUnknownSenderIsUnroutable(t *testing.T) {
	f := newFixture(t)

	d, err := f.gate.Resolve(context.Background(), msg("whatsapp:+31600000000", "hallo"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnroutable, d.Outcome)
	assert.Equal(t, model.MessageStatusFailed, d.Status)
	assert.Equal(t, ReplyUnknownSender, d.Reply)
	assert.Equal(t, errors.ErrUnroutable, errors.CodeOf(d.Err))
	assert.False(t, d.Routed())
}

func TestVerifiedChannelRoutes(t *testing.T) {
	f := newFixture(t)
	f.VerifiedChannel(t, "+31611111111", "Jan")

	d, err := f.gate.Resolve(context.Background(), msg("whatsapp:+31611111111", "status"))
	require.NoError(t, err)
	assert.True(t, d.Routed())
	assert.Equal(t, f.ProjectID, d.Channel.ProjectID)
	assert.Empty(t, d.Reply)
}

func TestVerificationHappensOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, code, err := f.gate.Invite(ctx, InviteRequest{Phone: "whatsapp:+31622222222", ProjectID: f.ProjectID, WorkerName: "Piet"})
	require.NoError(t, err)
	assert.Len(t, code, security.CodeLength)
	assert.False(t, ch.Verified)
	require.Len(t, f.transport.Sent("+31622222222"), 1)
	assert.Contains(t, f.transport.Sent("+31622222222")[0].Text, code)

	d, err := f.gate.Resolve(ctx, msg("+31622222222", "0000000"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnverified, d.Outcome)
	assert.Equal(t, ReplyReminder, d.Reply)

	d, err = f.gate.Resolve(ctx, msg("+31622222222", " "+code+" "))
	require.NoError(t, err)
	assert.Equal(t, OutcomeVerified, d.Outcome)
	assert.Equal(t, model.MessageStatusProcessed, d.Status)
	assert.Contains(t, d.Reply, "Villa Zuid")

	stored, err := f.Store.Channels.Get(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.Nil(t, stored.CodeHash)
	firstVerifiedAt := *stored.VerifiedAt

	f.clock.Advance(time.Minute)
	d, err = f.gate.Resolve(ctx, msg("+31622222222", code))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRouted, d.Outcome, "second code submission is ordinary text")

	stored, err = f.Store.Channels.Get(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, firstVerifiedAt, *stored.VerifiedAt)
}

func TestExpiredCodeIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, code, err := f.gate.Invite(ctx, InviteRequest{Phone: "+31633333333", ProjectID: f.ProjectID, WorkerName: "Kees"})
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)
	d, err := f.gate.Resolve(ctx, msg("+31633333333", code))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnverified, d.Outcome)
	assert.Equal(t, ReplyCodeExpired, d.Reply)

	_, fresh, err := f.gate.Reinvite(ctx, ch.ID)
	require.NoError(t, err)
	d, err = f.gate.Resolve(ctx, msg("+31633333333", fresh))
	require.NoError(t, err)
	assert.Equal(t, OutcomeVerified, d.Outcome)

	_, _, err = f.gate.Reinvite(ctx, ch.ID)
	assert.Equal(t, errors.ErrBadRequest, errors.CodeOf(err))
}

func TestInviteValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.gate.Invite(ctx, InviteRequest{Phone: "+31644444444", ProjectID: "nope", WorkerName: "X"})
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))

	f.VerifiedChannel(t, "+31655555555", "Jan")
	_, _, err = f.gate.Invite(ctx, InviteRequest{Phone: "+31655555555", ProjectID: f.ProjectID, WorkerName: "Jan"})
	assert.Equal(t, errors.ErrConflict, errors.CodeOf(err))
}

func TestDeactivatedChannelIsUnroutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.VerifiedChannel(t, "+31666666666", "Jan")

	d, err := f.gate.Resolve(ctx, msg("+31666666666", "status"))
	require.NoError(t, err)
	require.True(t, d.Routed())

	_, err = f.gate.Deactivate(ctx, ch.ID)
	require.NoError(t, err)

	d, err = f.gate.Resolve(ctx, msg("+31666666666", "status"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnroutable, d.Outcome)
}
