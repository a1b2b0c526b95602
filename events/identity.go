// Package events implements the Dispatcher / Event Mediator: for each
// Gerrit event it decides the set of chat recipients, computes is_human,
// calls the Formatter Runtime once per recipient, applies the recipient's
// filter, and hands the result to the outbound queue.
package events

import (
	"github.com/levenlabs/gerrit-chat-bridge/gerritssh"
)

// Identity decides whether a Gerrit account is a bot, by username.
// main.go builds one from the configured bot-identity list.
type Identity struct {
	bots map[string]struct{}
}

// NewIdentity builds an Identity from the configured bot usernames.
func NewIdentity(botUsernames []string) Identity {
	m := make(map[string]struct{}, len(botUsernames))
	for _, u := range botUsernames {
		m[u] = struct{}{}
	}
	return Identity{bots: m}
}

// IsHuman reports whether account looks like a person rather than an
// automated reviewer: its Gerrit username is absent from the configured
// bot-identity set. An account with no username at all (some service
// accounts omit it) is treated as a bot, since a human account always has
// one.
func (id Identity) IsHuman(a gerritssh.EventAccount) bool {
	if a.Username == "" {
		return false
	}
	_, isBot := id.bots[a.Username]
	return !isBot
}

// IsOwnerReply reports whether author is the change's own owner replying
// to their own change -- a distinct condition from is_human, fed to the
// formatter separately so it can drive notify_review_responses without
// overloading is_human's meaning.
func IsOwnerReply(e gerritssh.Event) bool {
	return e.Author.Email != "" && e.Author.Email == e.Change.Owner.Email
}
