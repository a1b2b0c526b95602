package store

import (
	"context"
	"time"

	"github.com/levenlabs/go-llog"

	"github.com/levenlabs/gerrit-chat-bridge/subscriber"
)

// DebounceWindow is how long the saver waits after the first change
// notification of a burst before writing a snapshot, coalescing every
// mutation made in that window (e.g. several commands in quick
// succession) into a single Save.
const DebounceWindow = 500 * time.Millisecond

// RetryWindow is how long the saver waits before retrying a Save that
// just failed (e.g. a transient disk error), rather than dropping the
// write on the floor until the next unrelated mutation happens to kick
// the timer again.
const RetryWindow = 5 * time.Second

// Saver is the state_saver task: the single owner of writes to the state
// file. It's fed by Registry.OnChange and debounces bursts of mutations
// into one Save per DebounceWindow.
type Saver struct {
	path string
	reg  *subscriber.Registry
	kick chan struct{}
}

// NewSaver builds a Saver for reg, writing to path.
func NewSaver(path string, reg *subscriber.Registry) *Saver {
	s := &Saver{path: path, reg: reg, kick: make(chan struct{}, 1)}
	reg.OnChange(s.request)
	return s
}

// request is the Registry.OnChange callback: non-blocking, coalesces
// into the pending kick if one is already queued.
func (s *Saver) request() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run drives the debounced save loop until ctx is canceled, at which
// point it performs one final synchronous save before returning.
func (s *Saver) Run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if err := Save(s.path, s.reg.Snapshot()); err != nil {
				llog.Error("error writing final state snapshot", llog.ErrKV(err), llog.KV{"path": s.path})
			}
			return
		case <-s.kick:
			if timer == nil {
				timer = time.NewTimer(DebounceWindow)
				timerC = timer.C
			}
		case <-timerC:
			if err := Save(s.path, s.reg.Snapshot()); err != nil {
				llog.Error("error writing state snapshot, scheduling retry", llog.ErrKV(err), llog.KV{"path": s.path, "retryIn": RetryWindow.String()})
				timer = time.NewTimer(RetryWindow)
				timerC = timer.C
				continue
			}
			timer = nil
			timerC = nil
		}
	}
}
