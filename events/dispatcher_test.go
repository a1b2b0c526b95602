package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levenlabs/gerrit-chat-bridge/gerritrest"
	"github.com/levenlabs/gerrit-chat-bridge/gerritssh"
	"github.com/levenlabs/gerrit-chat-bridge/subscriber"
)

// fakeFormatter renders every event as a fixed, recognizable string so
// tests can assert on what reached the outbox without depending on the
// real Lua script.
type fakeFormatter struct {
	suppress bool
}

func (f *fakeFormatter) FormatCommentAdded(e gerritssh.Event, flags map[string]bool, isHuman, isOwnerReply bool) (string, bool) {
	if f.suppress {
		return "", false
	}
	return "comment", true
}

func (f *fakeFormatter) FormatReviewerAdded(e gerritssh.Event, flags map[string]bool) (string, bool) {
	if f.suppress {
		return "", false
	}
	return "reviewer", true
}

func (f *fakeFormatter) FormatChangeMerged(e gerritssh.Event, flags map[string]bool) (string, bool) {
	if f.suppress {
		return "", false
	}
	return "merged", true
}

func (f *fakeFormatter) FormatChangeAbandoned(e gerritssh.Event, flags map[string]bool) (string, bool) {
	if f.suppress {
		return "", false
	}
	return "abandoned", true
}

type fakeRest struct {
	comments      []gerritssh.InlineComment
	calls         int
	reviewers     []gerritssh.EventAccount
	reviewerCalls int
}

func (r *fakeRest) ListReviewers(project string, number int64) ([]gerritssh.EventAccount, error) {
	r.reviewerCalls++
	return r.reviewers, nil
}

func (r *fakeRest) ListInlineComments(project string, number int64) ([]gerritssh.InlineComment, error) {
	r.calls++
	return r.comments, nil
}

type fakeSender struct {
	mu  sync.Mutex
	got []string
}

func (s *fakeSender) Send(chatID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, chatID+":"+text)
	return nil
}

func (s *fakeSender) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.got))
	copy(out, s.got)
	return out
}

func newTestDispatcher(reg *subscriber.Registry, fmtr Formatter, rest *fakeRest) (*Dispatcher, *fakeSender) {
	ctx := context.Background()
	sender := &fakeSender{}
	out := NewOutbox(ctx, sender)
	var restClient gerritrest.Client
	if rest != nil {
		restClient = rest
	}
	return NewDispatcher(reg, fmtr, restClient, NewIdentity([]string{"ci-bot"}), out), sender
}

func waitFor(t *testing.T, sender *fakeSender, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(sender.snapshot()) >= n
	}, time.Second, time.Millisecond)
	return sender.snapshot()
}

func TestDispatchCommentAddedNotifiesOwnerNotActor(t *testing.T) {
	reg := newTestRegistry(
		subscriber.Subscriber{ChatID: "Uowner", Email: "owner@example.com", Enabled: true},
		subscriber.Subscriber{ChatID: "Uauthor", Email: "author@example.com", Enabled: true},
	)
	d, sender := newTestDispatcher(reg, &fakeFormatter{}, nil)

	e := gerritssh.Event{
		Type:   gerritssh.EventTypeCommentAdded,
		Author: gerritssh.EventAccount{Username: "alice", Email: "author@example.com"},
		Change: gerritssh.EventChange{
			Status: gerritssh.ChangeStatusNew,
			Owner:  gerritssh.EventAccount{Email: "owner@example.com"},
		},
	}
	d.dispatch(context.Background(), e)

	got := waitFor(t, sender, 1)
	assert.Equal(t, []string{"Uowner:comment"}, got)
}

func TestDispatchCommentAddedSuppressesNonHumanOnClosedChange(t *testing.T) {
	reg := newTestRegistry(
		subscriber.Subscriber{ChatID: "Uowner", Email: "owner@example.com", Enabled: true},
	)
	d, sender := newTestDispatcher(reg, &fakeFormatter{}, nil)

	e := gerritssh.Event{
		Type:   gerritssh.EventTypeCommentAdded,
		Author: gerritssh.EventAccount{Username: "ci-bot", Email: "ci-bot@example.com"},
		Change: gerritssh.EventChange{
			Status: gerritssh.ChangeStatusMerged,
			Owner:  gerritssh.EventAccount{Email: "owner@example.com"},
		},
	}
	d.dispatch(context.Background(), e)

	// give the dispatcher a beat to (not) enqueue anything.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sender.snapshot())
}

func TestDispatchCommentAddedBackfillsInlineComments(t *testing.T) {
	reg := newTestRegistry(
		subscriber.Subscriber{ChatID: "Uowner", Email: "owner@example.com", Enabled: true},
		subscriber.Subscriber{ChatID: "Ur1", Email: "r1@example.com", Enabled: true},
	)
	rest := &fakeRest{comments: []gerritssh.InlineComment{
		{Reviewer: gerritssh.EventAccount{Email: "r1@example.com"}},
	}}
	d, sender := newTestDispatcher(reg, &fakeFormatter{}, rest)

	e := gerritssh.Event{
		Type:   gerritssh.EventTypeCommentAdded,
		Author: gerritssh.EventAccount{Username: "alice", Email: "author@example.com"},
		Change: gerritssh.EventChange{
			Status: gerritssh.ChangeStatusNew,
			Owner:  gerritssh.EventAccount{Email: "owner@example.com"},
		},
	}
	d.dispatch(context.Background(), e)

	got := waitFor(t, sender, 2)
	assert.Equal(t, 1, rest.calls)
	assert.ElementsMatch(t, []string{"Uowner:comment", "Ur1:comment"}, got)
}

func TestDispatchReviewerAddedNotifiesTheReviewer(t *testing.T) {
	reg := newTestRegistry(
		subscriber.Subscriber{ChatID: "Ur1", Email: "r1@example.com", Enabled: true},
	)
	d, sender := newTestDispatcher(reg, &fakeFormatter{}, nil)

	e := gerritssh.Event{
		Type:     gerritssh.EventTypeReviewerAdded,
		Reviewer: gerritssh.EventAccount{Email: "r1@example.com"},
	}
	d.dispatch(context.Background(), e)

	got := waitFor(t, sender, 1)
	assert.Equal(t, []string{"Ur1:reviewer"}, got)
}

func TestDispatchChangeMergedExcludesSubmitter(t *testing.T) {
	reg := newTestRegistry(
		subscriber.Subscriber{ChatID: "Uowner", Email: "owner@example.com", Enabled: true},
		subscriber.Subscriber{ChatID: "Usubmitter", Email: "submitter@example.com", Enabled: true},
	)
	d, sender := newTestDispatcher(reg, &fakeFormatter{}, nil)

	e := gerritssh.Event{
		Type:      gerritssh.EventTypeChangeMerged,
		Submitter: gerritssh.EventAccount{Email: "submitter@example.com"},
		Change:    gerritssh.EventChange{Owner: gerritssh.EventAccount{Email: "owner@example.com"}},
	}
	d.dispatch(context.Background(), e)

	got := waitFor(t, sender, 1)
	assert.Equal(t, []string{"Uowner:merged"}, got)
}

func TestDispatchChangeMergedNotifiesPriorReviewersViaREST(t *testing.T) {
	reg := newTestRegistry(
		subscriber.Subscriber{ChatID: "Uowner", Email: "owner@example.com", Enabled: true},
		subscriber.Subscriber{ChatID: "Ur1", Email: "r1@example.com", Enabled: true},
		subscriber.Subscriber{ChatID: "Usubmitter", Email: "submitter@example.com", Enabled: true},
	)
	rest := &fakeRest{reviewers: []gerritssh.EventAccount{
		{Email: "r1@example.com"},
		{Email: "submitter@example.com"},
	}}
	d, sender := newTestDispatcher(reg, &fakeFormatter{}, rest)

	e := gerritssh.Event{
		Type:      gerritssh.EventTypeChangeMerged,
		Submitter: gerritssh.EventAccount{Email: "submitter@example.com"},
		Change:    gerritssh.EventChange{Owner: gerritssh.EventAccount{Email: "owner@example.com"}},
	}
	d.dispatch(context.Background(), e)

	got := waitFor(t, sender, 2)
	assert.Equal(t, 1, rest.reviewerCalls)
	assert.ElementsMatch(t, []string{"Uowner:merged", "Ur1:merged"}, got)
}

func TestDispatchChangeAbandonedExcludesAbandoner(t *testing.T) {
	reg := newTestRegistry(
		subscriber.Subscriber{ChatID: "Uowner", Email: "owner@example.com", Enabled: true},
	)
	d, sender := newTestDispatcher(reg, &fakeFormatter{}, nil)

	e := gerritssh.Event{
		Type:      gerritssh.EventTypeChangeAbandoned,
		Abandoner: gerritssh.EventAccount{Email: "owner@example.com"},
		Change:    gerritssh.EventChange{Owner: gerritssh.EventAccount{Email: "owner@example.com"}},
	}
	d.dispatch(context.Background(), e)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sender.snapshot())
}

func TestDispatchSendRespectsSubscriberFilter(t *testing.T) {
	filter := &subscriber.Filter{Pattern: "comment", Enabled: true}
	require.NoError(t, filter.Compile())
	reg := newTestRegistry(
		subscriber.Subscriber{ChatID: "Uowner", Email: "owner@example.com", Enabled: true, Filter: filter},
	)
	d, sender := newTestDispatcher(reg, &fakeFormatter{}, nil)

	e := gerritssh.Event{
		Type:   gerritssh.EventTypeCommentAdded,
		Author: gerritssh.EventAccount{Username: "alice", Email: "author@example.com"},
		Change: gerritssh.EventChange{
			Status: gerritssh.ChangeStatusNew,
			Owner:  gerritssh.EventAccount{Email: "owner@example.com"},
		},
	}
	d.dispatch(context.Background(), e)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sender.snapshot())
}
