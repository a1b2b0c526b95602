package events

import "github.com/levenlabs/gerrit-chat-bridge/gerritssh"

// Formatter is the subset of the Formatter Runtime the Dispatcher calls
// through. Declared as an interface here (rather than importing *format.
// Runtime directly) so the Dispatcher can be tested against a fake.
type Formatter interface {
	FormatCommentAdded(e gerritssh.Event, flags map[string]bool, isHuman, isOwnerReply bool) (string, bool)
	FormatReviewerAdded(e gerritssh.Event, flags map[string]bool) (string, bool)
	FormatChangeMerged(e gerritssh.Event, flags map[string]bool) (string, bool)
	FormatChangeAbandoned(e gerritssh.Event, flags map[string]bool) (string, bool)
}
