package gerritssh

import (
	"bufio"
	"context"
	"encoding/json"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/levenlabs/go-llog"
)

// State is the connection state of the Gerrit event source, per the
// disconnected -> connecting -> streaming -> (disconnected | failed)
// state machine.
type State int

const (
	// StateDisconnected means no session is currently open; a reconnect
	// may be pending.
	StateDisconnected State = iota
	// StateConnecting means a dial/auth/exec attempt is in flight.
	StateConnecting
	// StateStreaming means the remote stream-events command is running and
	// events are being read from its stdout.
	StateStreaming
	// StateFailed means a configuration error made reconnecting pointless;
	// Run has returned for good.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	minBackoff = 1 * time.Second
	maxBackoff = 60 * time.Second
)

// StateChange is an optional metadata event the Dispatcher may observe if
// operators want connection-state observability; it is never required for
// correctness and the Dispatcher must not use it to drive reconnection
// logic (that stays owned by this package).
type StateChange struct {
	State State
	Err   error
}

// Run owns the Gerrit Event Source's full lifecycle: dial, authenticate,
// run "gerrit stream-events", parse its stdout, reconnect with exponential
// backoff on any failure, and keep doing so until ctx is canceled. Parsed
// events are sent to ch; state transitions are optionally reported to
// states (which may be nil).
//
// Run only returns once ctx is canceled (or, in principle, a configuration
// error makes every future attempt pointless -- in practice all errors
// observed here, auth included, are treated as transient per spec, since a
// bad key is already validated at startup before Run is ever called).
func (s *Client) Run(ctx context.Context, ch chan<- Event, states chan<- StateChange) {
	backoff := minBackoff
	report := func(st State, err error) {
		if st == StateStreaming {
			// a successful connect resets backoff, per spec -- this is the
			// only place Run's backoff variable is written other than the
			// doubling below, since streamOnce (which observes
			// StateStreaming first) has no access to Run's local.
			backoff = minBackoff
		}
		if states == nil {
			return
		}
		select {
		case states <- StateChange{State: st, Err: err}:
		default:
			llog.Warn("dropping state-change notification, no listener", llog.KV{"state": st.String()})
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		report(StateConnecting, nil)
		err := s.streamOnce(ctx, ch, report)
		if ctx.Err() != nil {
			return
		}

		report(StateDisconnected, err)
		llog.Error("gerrit stream disconnected, reconnecting", llog.ErrKV(err), llog.KV{"backoff": backoff.String()})

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// streamOnce performs one connect-and-stream cycle. "Successfully
// connected" (not "successfully streamed to completion") is what the spec
// says resets backoff, so streamOnce reports StateStreaming as soon as the
// remote command starts; Run's report closure resets its own backoff
// variable right there, since streamOnce has no access to it directly.
func (s *Client) streamOnce(ctx context.Context, ch chan<- Event, report func(State, error)) error {
	conn, err := s.DialConn()
	if err != nil {
		return err
	}
	defer conn.Close()

	sess, err := conn.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	sout, err := sess.StdoutPipe()
	if err != nil {
		return err
	}
	sos := bufio.NewScanner(sout)
	sos.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	runCh := make(chan error, 1)
	go func() {
		runCh <- sess.Run("gerrit stream-events")
	}()

	report(StateStreaming, nil)

	stopKeepalive := make(chan struct{})
	defer close(stopKeepalive)
	if s.KeepaliveInterval > 0 {
		go s.keepalive(conn, sess, stopKeepalive)
	}

	readCh := make(chan error, 1)
	go func() {
		for sos.Scan() {
			var ev Event
			if err := json.Unmarshal(sos.Bytes(), &ev); err != nil {
				llog.Error("error unmarshalling gerrit event", llog.ErrKV(err))
				continue
			}
			llog.Info("gerrit event", ev.KV())
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		readCh <- sos.Err()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		sess.Close()
		<-runCh
		return nil
	case runErr = <-runCh:
	case runErr = <-readCh:
	}

	sess.Close()
	<-runCh
	if runErr == nil {
		runErr = &ssh.ExitMissingError{}
	}
	return runErr
}

// keepalive sends an SSH-level keepalive request on conn every
// KeepaliveInterval; after KeepaliveMaxMissed consecutive failures to get a
// reply it force-closes sess to trigger a reconnect.
func (s *Client) keepalive(conn *ssh.Client, sess *ssh.Session, stop <-chan struct{}) {
	interval := s.KeepaliveInterval
	maxMissed := s.KeepaliveMaxMissed
	if maxMissed <= 0 {
		maxMissed = 1
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	missed := 0
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ok, _, err := conn.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil || !ok {
				missed++
				llog.Warn("gerrit ssh keepalive missed", llog.KV{"missed": missed})
				if missed >= maxMissed {
					llog.Error("gerrit ssh keepalive threshold exceeded, forcing reconnect")
					sess.Close()
					return
				}
				continue
			}
			missed = 0
		}
	}
}
