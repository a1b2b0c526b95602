package subscriber

import (
	"strings"
	"sync"
	"time"
)

// Set is a complete, self-consistent collection of subscribers, each
// identified by its email (the invariant: emails are unique).
type Set struct {
	Version     int          `json:"version"`
	Subscribers []Subscriber `json:"subscribers"`
}

// Registry is the single owner of the live Subscriber set. Every other
// component (Dispatcher, Chat Adapter) only ever reads an immutable
// snapshot via Snapshot/ByEmail/ByChatID; only the Command Handler mutates
// it, through the methods below.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]*Subscriber // keyed by lowercased email

	// onChange is invoked (without the lock held) after any mutation, so
	// the state-saver task can be told to debounce a save. It may be nil
	// in tests.
	onChange func()
}

// NewRegistry builds a Registry from a loaded Set.
func NewRegistry(set Set) *Registry {
	r := &Registry{byKey: map[string]*Subscriber{}}
	for i := range set.Subscribers {
		s := set.Subscribers[i]
		r.byKey[normalizeEmail(s.Email)] = &s
	}
	return r
}

// OnChange registers the callback invoked after every mutation.
func (r *Registry) OnChange(f func()) {
	r.mu.Lock()
	r.onChange = f
	r.mu.Unlock()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *Registry) notify() {
	r.mu.RLock()
	cb := r.onChange
	r.mu.RUnlock()
	if cb != nil {
		cb()
	}
}

// Snapshot returns a point-in-time copy of the whole set, safe for the
// caller to range over without taking any lock.
func (r *Registry) Snapshot() Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Set{Version: 1, Subscribers: make([]Subscriber, 0, len(r.byKey))}
	for _, s := range r.byKey {
		out.Subscribers = append(out.Subscribers, *s)
	}
	return out
}

// ByEmail returns the subscriber for the given (case-insensitive) email,
// if one exists.
func (r *Registry) ByEmail(email string) (Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byKey[normalizeEmail(email)]
	if !ok {
		return Subscriber{}, false
	}
	return *s, true
}

// ByChatID returns the subscriber for the given chat-user id, if one
// exists. Chat ids aren't indexed separately (emails are the only unique
// key) so this is a linear scan; the set is expected to be small enough
// (single-team bot) that this is fine.
func (r *Registry) ByChatID(chatID string) (Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byKey {
		if s.ChatID == chatID {
			return *s, true
		}
	}
	return Subscriber{}, false
}

// CountEnabled returns the number of enabled subscribers, excluding the
// one identified by excludeChatID (used for the `status` command's "N
// other enabled subscribers" figure).
func (r *Registry) CountEnabled(excludeChatID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.byKey {
		if s.ChatID == excludeChatID {
			continue
		}
		if s.Enabled {
			n++
		}
	}
	return n
}

// GetOrCreate returns the subscriber for chatID/email, creating a
// brand-new disabled subscriber with default flags if none exists yet.
// The bool return is true when a new record was created.
func (r *Registry) GetOrCreate(chatID, email string) (Subscriber, bool) {
	key := normalizeEmail(email)
	r.mu.Lock()
	s, ok := r.byKey[key]
	if ok {
		cp := *s
		r.mu.Unlock()
		return cp, false
	}
	now := time.Now()
	s = &Subscriber{
		ChatID:    chatID,
		Email:     key,
		Enabled:   false,
		Flags:     Flags{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.byKey[key] = s
	cp := *s
	r.mu.Unlock()
	r.notify()
	return cp, true
}

// Mutate applies f to the subscriber identified by email (creating a new
// record first if necessary), persists the result, and triggers a
// save. It is the only way any caller outside this package changes
// subscriber state.
func (r *Registry) Mutate(chatID, email string, f func(*Subscriber)) Subscriber {
	key := normalizeEmail(email)
	r.mu.Lock()
	s, ok := r.byKey[key]
	if !ok {
		now := time.Now()
		s = &Subscriber{ChatID: chatID, Email: key, Flags: Flags{}, CreatedAt: now}
		r.byKey[key] = s
	}
	f(s)
	s.UpdatedAt = time.Now()
	cp := *s
	r.mu.Unlock()
	r.notify()
	return cp
}

// Replace atomically swaps in a freshly loaded Set, discarding the
// previous in-memory state. It does not invoke the OnChange callback.
func (r *Registry) Replace(set Set) {
	byKey := map[string]*Subscriber{}
	for i := range set.Subscribers {
		s := set.Subscribers[i]
		byKey[normalizeEmail(s.Email)] = &s
	}
	r.mu.Lock()
	r.byKey = byKey
	r.mu.Unlock()
}
