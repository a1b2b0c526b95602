package events

import (
	"sort"
	"strings"

	"github.com/levenlabs/gerrit-chat-bridge/gerritssh"
	"github.com/levenlabs/gerrit-chat-bridge/subscriber"
)

// recipient wraps a resolved Subscriber; sortRecipients orders a slice of
// them by chat-user-id.
type recipient struct {
	sub subscriber.Subscriber
}

// sortRecipients orders candidates by chat-user-id, the stable per-event
// order the spec requires.
func sortRecipients(rs []recipient) {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].sub.ChatID < rs[j].sub.ChatID
	})
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// resolveEnabled looks up each candidate email in the registry and keeps
// only the ones with a known, enabled subscriber, excluding exclude (the
// event's actor, who never needs notifying about their own action).
func resolveEnabled(reg *subscriber.Registry, emails []string, exclude string) []recipient {
	exclude = normalizeEmail(exclude)
	seen := map[string]struct{}{}
	var out []recipient
	for _, email := range emails {
		email = normalizeEmail(email)
		if email == "" || email == exclude {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		s, ok := reg.ByEmail(email)
		if !ok || !s.Enabled {
			continue
		}
		out = append(out, recipient{sub: s})
	}
	sortRecipients(out)
	return out
}

// commentAddedCandidates returns the change owner plus any inline-comment
// reviewers, per spec.md section 4.6's comment-added recipient rule.
func commentAddedCandidates(e gerritssh.Event) []string {
	emails := []string{e.Change.Owner.Email}
	for _, c := range e.PatchSet.Comments {
		emails = append(emails, c.Reviewer.Email)
	}
	return emails
}

// reviewerAddedCandidates returns the reviewer who was just added.
func reviewerAddedCandidates(e gerritssh.Event) []string {
	return []string{e.Reviewer.Email}
}

// terminalCandidates returns the change owner plus distinct reviewer
// emails, for change-merged and change-abandoned events. Neither stream
// event carries an approvals array, so reviewers come from whatever the
// caller already fetched via gerritrest.Client.ListReviewers; any
// approvals present on the event (there usually aren't any) are folded
// in too, on the chance they carry an email the reviewer list doesn't.
func terminalCandidates(e gerritssh.Event, reviewers []gerritssh.EventAccount) []string {
	emails := []string{e.Change.Owner.Email}
	for _, a := range e.Approvals {
		emails = append(emails, a.By.Email)
	}
	for _, r := range reviewers {
		emails = append(emails, r.Email)
	}
	return emails
}
