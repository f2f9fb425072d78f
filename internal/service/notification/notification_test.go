package notification

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/testsupport"
	"github.com/bouwupdate/intake-api/pkg/errors"
	"github.com/bouwupdate/intake-api/pkg/messaging"
)

type fixture struct {
	*testsupport.Fixture
	transport *testsupport.Transport
	mailer    *testsupport.Mailer
	broker    *messaging.MemoryBroker
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		Fixture:   testsupport.NewFixture(t),
		transport: testsupport.NewTransport(),
		mailer:    &testsupport.Mailer{},
		broker:    messaging.NewMemoryBroker(),
	}
	f.svc = NewService(f.Store, f.transport, f.mailer, f.broker, nil)
	f.Issue(t, "issue-1", "Scheur in fundering")
	return f
}

func (f *fixture) mention(t *testing.T, memberID string) *model.Mention {
	t.Helper()
	m := &model.Mention{Base: model.Base{ID: "mention-" + memberID}, IssueID: "issue-1", TeamMemberID: memberID}
	_, err := f.Store.Mentions.Upsert(context.Background(), m)
	require.NoError(t, err)
	return m
}

func TestProcessMentionsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.Member(t, "m1", "Jan", "+31611111111", "")
	ctx := context.Background()

	first, err := f.svc.ProcessMentions(ctx, "issue-1", []string{"m1", "m1"})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.True(t, first[0].Notified)

	second, err := f.svc.ProcessMentions(ctx, "issue-1", []string{"m1"})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)

	mentions, err := f.Store.Mentions.ListByIssue(ctx, "issue-1")
	require.NoError(t, err)
	assert.Len(t, mentions, 1)
	assert.Len(t, f.transport.Sent("+31611111111"), 1)
	assert.Len(t, f.broker.Published(messaging.TopicMentionInApp), 1)
}

func TestNotifyUnreachableMemberIsMarked(t *testing.T) {
	f := newFixture(t)
	f.Member(t, "m1", "Piet", "", "")
	ctx := context.Background()

	mentions, err := f.svc.ProcessMentions(ctx, "issue-1", []string{"m1"})
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.True(t, mentions[0].Notified)

	err = f.svc.Notify(ctx, mentions[0].ID)
	assert.NoError(t, err, "already notified mention is a no-op")
	assert.Empty(t, f.transport.Sent(""))
}

func TestNotifyReportsUnreachableAddress(t *testing.T) {
	f := newFixture(t)
	f.Member(t, "m1", "Piet", "", "")
	m := f.mention(t, "m1")

	err := f.svc.Notify(context.Background(), m.ID)
	assert.ErrorIs(t, err, ErrNoReachableAddress)

	got, err := f.Store.Mentions.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.True(t, got.Notified)
}

func TestFailedDeliveryIsRetried(t *testing.T) {
	f := newFixture(t)
	f.Member(t, "m1", "Jan", "+31611111111", "")
	ctx := context.Background()

	f.transport.SendErr = func(string, string) error { return stderrors.New("provider down") }
	mentions, err := f.svc.ProcessMentions(ctx, "issue-1", []string{"m1"})
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.False(t, mentions[0].Notified)
	assert.Equal(t, 1, mentions[0].Attempts)
	require.NotNil(t, mentions[0].LastError)
	assert.Contains(t, *mentions[0].LastError, "provider down")

	err = f.svc.Notify(ctx, mentions[0].ID)
	assert.Equal(t, errors.ErrNotificationFailed, errors.CodeOf(err))

	f.transport.SendErr = nil
	stats, err := f.svc.RetryPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, RetryStats{Pending: 1, Delivered: 1}, stats)

	got, err := f.Store.Mentions.Get(ctx, mentions[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Notified)
	assert.Equal(t, 2, got.Attempts)
	assert.Len(t, f.transport.Sent(""), 1)

	stats, err = f.svc.RetryPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}

func TestEmailFallback(t *testing.T) {
	f := newFixture(t)
	f.Member(t, "m1", "Kees", "", "kees@example.nl")

	_, err := f.svc.ProcessMentions(context.Background(), "issue-1", []string{"m1"})
	require.NoError(t, err)

	mail := f.mailer.Sent()
	require.Len(t, mail, 1)
	assert.Equal(t, "kees@example.nl", mail[0].To)
	assert.Contains(t, mail[0].Subject, "Scheur in fundering")
	assert.Empty(t, f.transport.Sent(""))
}

func TestConcurrentNotifySendsOnce(t *testing.T) {
	f := newFixture(t)
	f.Member(t, "m1", "Jan", "+31611111111", "")
	m := f.mention(t, "m1")

	block := make(chan struct{})
	f.transport.SendErr = func(string, string) error { <-block; return nil }

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.svc.Notify(context.Background(), m.ID)
		}()
	}
	close(block)
	wg.Wait()

	assert.Len(t, f.transport.Sent(""), 1)
	assert.Len(t, f.broker.Published(messaging.TopicMentionInApp), 1)
}

func TestNotifyAcrossServicesSharingStoreSendsOnce(t *testing.T) {
	f := newFixture(t)
	f.Member(t, "m1", "Jan", "+31611111111", "")
	m := f.mention(t, "m1")
	f.transport.SendErr = func(string, string) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}
	// api and worker each build their own Service over the same database.
	other := NewService(f.Store, f.transport, f.mailer, f.broker, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, svc := range []*Service{f.svc, other} {
		wg.Add(1)
		go func(i int, svc *Service) {
			defer wg.Done()
			errs[i] = svc.Notify(context.Background(), m.ID)
		}(i, svc)
	}
	wg.Wait()

	assert.Len(t, f.transport.Sent("+31611111111"), 1)
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrMentionClaimed)
			assert.Equal(t, errors.ErrConflict, errors.CodeOf(err))
		}
	}
	stored, err := f.Store.Mentions.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.True(t, stored.Notified)
	assert.Nil(t, stored.ClaimedUntil)
}

func TestExpiredClaimIsTakenOver(t *testing.T) {
	f := newFixture(t)
	f.Member(t, "m1", "Jan", "+31611111111", "")
	m := f.mention(t, "m1")
	clock := testsupport.NewClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	svc := NewService(f.Store, f.transport, f.mailer, f.broker, nil, WithClock(clock.Now), WithClaimTTL(time.Minute))
	ctx := context.Background()

	// A process that claimed the mention and died before sending.
	ok, err := f.Store.Mentions.Claim(ctx, m.ID, clock.Now(), clock.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	err = svc.Notify(ctx, m.ID)
	assert.ErrorIs(t, err, ErrMentionClaimed)
	assert.Empty(t, f.transport.Sent(""))

	clock.Advance(time.Minute)
	require.NoError(t, svc.Notify(ctx, m.ID))
	assert.Len(t, f.transport.Sent("+31611111111"), 1)
}

func TestFailedDeliveryReleasesClaim(t *testing.T) {
	f := newFixture(t)
	f.Member(t, "m1", "Jan", "+31611111111", "")
	m := f.mention(t, "m1")
	f.transport.SendErr = func(string, string) error { return stderrors.New("provider down") }
	ctx := context.Background()

	require.Error(t, f.svc.Notify(ctx, m.ID))
	stored, err := f.Store.Mentions.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ClaimedUntil)
	assert.False(t, stored.Notified)

	f.transport.SendErr = nil
	require.NoError(t, f.svc.Notify(ctx, m.ID))
	assert.Len(t, f.transport.Sent("+31611111111"), 1)
}

func TestMessageTruncatesDescription(t *testing.T) {
	f := newFixture(t)
	member := f.Member(t, "m1", "Jan", "+31611111111", "")
	issue, err := f.Store.Issues.Get(context.Background(), "issue-1")
	require.NoError(t, err)
	long := make([]rune, 400)
	for i := range long {
		long[i] = 'x'
	}
	issue.Description = string(long)

	msg := Message(member, issue)
	assert.Contains(t, msg, "Hallo Jan")
	assert.Contains(t, msg, "ernst: gemiddeld")
	assert.Contains(t, msg, "…")
	assert.Less(t, len([]rune(msg)), 400)
}
