// Package subscriber owns the Subscriber set: the chat-user records that
// drive who gets notified about which Gerrit events, and the command
// grammar subscribers use to change their own preferences.
package subscriber

import (
	"regexp"
	"time"
)

// Flag names a toggleable notification category. Unknown flag names
// (lookups for a name not in this list) always resolve to their
// documented default -- see Flags.Enabled.
type Flag string

// The recognized notification flags and their defaults. Changing a
// default here is a user-visible behavior change and must be reflected in
// the state file schema version (Set.Version).
const (
	FlagReviewApprovals Flag = "notify_review_approvals"
	FlagReviewComments  Flag = "notify_review_comments"
	FlagReviewInline    Flag = "notify_review_inline_comments"
	FlagReviewResponses Flag = "notify_review_responses"
	FlagReviewerAdded   Flag = "notify_reviewer_added"
	FlagChangeMerged    Flag = "notify_change_merged"
	FlagChangeAbandoned Flag = "notify_change_abandoned"
)

// DefaultFlags are the documented per-flag defaults, applied to every
// newly created Subscriber and returned by Flags.Enabled for any flag the
// subscriber's own map doesn't mention.
var DefaultFlags = map[Flag]bool{
	FlagReviewApprovals: true,
	FlagReviewComments:  false,
	FlagReviewInline:    true,
	FlagReviewResponses: false,
	FlagReviewerAdded:   true,
	FlagChangeMerged:    true,
	FlagChangeAbandoned: true,
}

// KnownFlags lists every recognized flag name, for validating `enable
// <flag>` / `disable <flag>` commands.
var KnownFlags = []Flag{
	FlagReviewApprovals,
	FlagReviewComments,
	FlagReviewInline,
	FlagReviewResponses,
	FlagReviewerAdded,
	FlagChangeMerged,
	FlagChangeAbandoned,
}

// IsKnownFlag reports whether name is a recognized flag.
func IsKnownFlag(name string) bool {
	_, ok := DefaultFlags[Flag(name)]
	return ok
}

// Flags is a subscriber's per-flag overrides. A flag absent from the map
// takes its documented default.
type Flags map[Flag]bool

// Enabled returns whether f is on for this subscriber, falling back to
// DefaultFlags for any flag not explicitly set.
func (fl Flags) Enabled(f Flag) bool {
	if v, ok := fl[f]; ok {
		return v
	}
	return DefaultFlags[f]
}

// Clone returns a deep copy, so callers can hand out a Flags value without
// letting the recipient mutate the subscriber's real state.
func (fl Flags) Clone() Flags {
	cp := make(Flags, len(fl))
	for k, v := range fl {
		cp[k] = v
	}
	return cp
}

// Filter is a subscriber's optional outbound message regex filter. When
// Enabled, any rendered message matching Pattern is suppressed before
// being sent.
type Filter struct {
	Pattern string `json:"pattern"`
	Enabled bool   `json:"enabled"`

	compiled *regexp.Regexp
}

// Compile parses Pattern into a usable matcher. Must be called after
// loading a Filter from storage (compiled is never serialized).
func (f *Filter) Compile() error {
	if f.Pattern == "" {
		f.compiled = nil
		return nil
	}
	re, err := regexp.Compile(f.Pattern)
	if err != nil {
		return err
	}
	f.compiled = re
	return nil
}

// Suppresses reports whether the filter, if enabled and compiled,
// matches text.
func (f *Filter) Suppresses(text string) bool {
	if f == nil || !f.Enabled || f.compiled == nil {
		return false
	}
	return f.compiled.MatchString(text)
}

// Subscriber is a single chat user's notification state. It is identified
// by ChatID (opaque chat-side user id) and Email (lowercased, the join key
// to Gerrit identities). Subscribers are never deleted; Enabled=false is
// the soft-disable.
type Subscriber struct {
	ChatID    string    `json:"chat_id"`
	Email     string    `json:"email"`
	Enabled   bool      `json:"enabled"`
	Flags     Flags     `json:"flags"`
	Filter    *Filter   `json:"filter"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// unknownFields preserves JSON object keys this version of the code
	// doesn't know about, so a load-then-save round trip doesn't silently
	// drop data a newer/older binary wrote.
	unknownFields map[string]interface{}
}

// FlagSnapshot returns the subscriber's enabled flags as a plain
// map[string]bool, the shape the Formatter Runtime's script boundary
// expects (scripts never see the Flag type or compiled regexes).
func (s *Subscriber) FlagSnapshot() map[string]bool {
	out := make(map[string]bool, len(KnownFlags))
	for _, f := range KnownFlags {
		out[string(f)] = s.Flags.Enabled(f)
	}
	return out
}
