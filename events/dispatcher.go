package events

import (
	"context"
	"time"

	"github.com/levenlabs/go-llog"

	"github.com/levenlabs/gerrit-chat-bridge/gerritrest"
	"github.com/levenlabs/gerrit-chat-bridge/gerritssh"
	"github.com/levenlabs/gerrit-chat-bridge/subscriber"
)

// ReviewerAddedDelay is how long the Dispatcher waits before backfilling
// inline comments for a comment-added event fired within a second of the
// patch set it comments on, giving Gerrit's own bookkeeping a chance
// to settle before the REST read -- the teacher's "wait 5s to catch
// reviewers added with the patch set" idiom, generalized and now a
// constant instead of a config-gated time.Sleep in the handler itself.
const ReviewerAddedDelay = 5 * time.Second

// Dispatcher is the Event Mediator: for each Gerrit event it computes
// is_human, resolves recipients, renders per-recipient via Formatter, and
// enqueues results on the Outbox.
type Dispatcher struct {
	reg      *subscriber.Registry
	fmt      Formatter
	rest     gerritrest.Client
	identity Identity
	out      *Outbox
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(reg *subscriber.Registry, fmtr Formatter, rest gerritrest.Client, identity Identity, out *Outbox) *Dispatcher {
	return &Dispatcher{reg: reg, fmt: fmtr, rest: rest, identity: identity, out: out}
}

// Run consumes events from ch until ctx is canceled or ch is closed.
// Events are processed one at a time and in order, per the spec's
// cross-event ordering guarantee.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan gerritssh.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			d.dispatch(ctx, e)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, e gerritssh.Event) {
	switch e.Type {
	case gerritssh.EventTypeCommentAdded:
		d.dispatchCommentAdded(ctx, e)
	case gerritssh.EventTypeReviewerAdded:
		d.dispatchReviewerAdded(e)
	case gerritssh.EventTypeChangeMerged:
		d.dispatchTerminal(e, d.fmt.FormatChangeMerged)
	case gerritssh.EventTypeChangeAbandoned:
		d.dispatchTerminal(e, d.fmt.FormatChangeAbandoned)
	default:
		// Every other known or unknown event type has no notification
		// shape defined by the spec; it is silently dropped here, not
		// logged as an error, since receiving it is expected behavior
		// (Gerrit streams everything to every listener).
	}
}

func (d *Dispatcher) dispatchCommentAdded(ctx context.Context, e gerritssh.Event) {
	isHuman := d.identity.IsHuman(e.Author)
	if !isHuman && e.Change.Status != gerritssh.ChangeStatusNew {
		// A non-human author posting on a change that's no longer open is
		// suppressed globally, before any recipient is even considered.
		return
	}

	if d.rest != nil && len(e.PatchSet.Comments) == 0 {
		if e.TSCreated != 0 && e.PatchSet.TSCreated != 0 && e.TSCreated-e.PatchSet.TSCreated < 2 {
			// this comment landed in the same instant as its patch set;
			// give Gerrit's own bookkeeping ReviewerAddedDelay to settle
			// before reading inline comments back, or we race an empty
			// result.
			time.Sleep(ReviewerAddedDelay)
		}
		comments, err := d.rest.ListInlineComments(e.Change.Project, e.Change.Number)
		if err != nil {
			llog.Error("error backfilling inline comments", llog.ErrKV(err), e.KV())
		} else {
			e.PatchSet.Comments = comments
		}
	}

	isOwnerReply := IsOwnerReply(e)
	recipients := resolveEnabled(d.reg, commentAddedCandidates(e), e.Author.Email)
	for _, r := range recipients {
		flags := r.sub.FlagSnapshot()
		text, ok := d.fmt.FormatCommentAdded(e, flags, isHuman, isOwnerReply)
		if !ok {
			continue
		}
		d.send(r.sub, text)
	}
}

func (d *Dispatcher) dispatchReviewerAdded(e gerritssh.Event) {
	// the added reviewer is themselves the intended recipient, so unlike
	// other event types there's no actor to exclude here.
	recipients := resolveEnabled(d.reg, reviewerAddedCandidates(e), "")
	for _, r := range recipients {
		text, ok := d.fmt.FormatReviewerAdded(e, r.sub.FlagSnapshot())
		if !ok {
			continue
		}
		d.send(r.sub, text)
	}
}

func (d *Dispatcher) dispatchTerminal(e gerritssh.Event, render func(gerritssh.Event, map[string]bool) (string, bool)) {
	actor := e.Submitter.Email
	if e.Type == gerritssh.EventTypeChangeAbandoned {
		actor = e.Abandoner.Email
	}

	// change-merged/change-abandoned carry no approvals array, so the
	// "previous distinct reviewers" half of the recipient set has to come
	// from the REST reviewer list, not the event payload.
	var reviewers []gerritssh.EventAccount
	if d.rest != nil {
		rs, err := d.rest.ListReviewers(e.Change.Project, e.Change.Number)
		if err != nil {
			llog.Error("error fetching reviewers for terminal event", llog.ErrKV(err), e.KV())
		} else {
			reviewers = rs
		}
	}

	recipients := resolveEnabled(d.reg, terminalCandidates(e, reviewers), actor)
	for _, r := range recipients {
		text, ok := render(e, r.sub.FlagSnapshot())
		if !ok {
			continue
		}
		d.send(r.sub, text)
	}
}

func (d *Dispatcher) send(s subscriber.Subscriber, text string) {
	if s.Filter != nil && s.Filter.Enabled && s.Filter.Suppresses(text) {
		return
	}
	d.out.Enqueue(s.ChatID, text)
}
