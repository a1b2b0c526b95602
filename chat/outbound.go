package chat

import (
	"errors"
	"time"

	"github.com/levenlabs/go-llog"
)

// MaxSendAttempts bounds outbound retries; after this many failures, the
// message is dropped and logged rather than retried forever (generalizes
// the teacher's retry-every-minute-forever webhookSubmitter loop into a
// bounded policy, per spec.md §4.4/§7).
const MaxSendAttempts = 5

// sendMinBackoff/sendMaxBackoff reuse the same doubling-backoff shape as
// the Gerrit Event Source's reconnect logic (gerritssh.minBackoff/
// maxBackoff), applied here to one send instead of one connection.
const (
	sendMinBackoff = 500 * time.Millisecond
	sendMaxBackoff = 30 * time.Second
)

// PermanentError marks a send failure that retrying won't fix (a 4xx
// response other than 429), so the caller can drop it immediately instead
// of burning through MaxSendAttempts.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

type rawSender interface {
	Send(chatID, text string) error
}

// RetryingSender wraps a rawSender (an API's Send method) with bounded
// exponential-backoff retry, implementing events.Sender.
type RetryingSender struct {
	raw rawSender
}

// NewRetryingSender wraps raw.
func NewRetryingSender(raw rawSender) *RetryingSender {
	return &RetryingSender{raw: raw}
}

// Send implements events.Sender.
func (s *RetryingSender) Send(chatID, text string) error {
	backoff := sendMinBackoff
	var lastErr error
	for attempt := 1; attempt <= MaxSendAttempts; attempt++ {
		err := s.raw.Send(chatID, text)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			llog.Error("permanent send failure, dropping message", llog.ErrKV(perm.Err), llog.KV{"chatID": chatID})
			return err
		}

		if attempt < MaxSendAttempts {
			llog.Warn("retrying chat send", llog.ErrKV(err), llog.KV{"chatID": chatID, "attempt": attempt})
			time.Sleep(backoff)
			backoff *= 2
			if backoff > sendMaxBackoff {
				backoff = sendMaxBackoff
			}
		}
	}
	llog.Error("dropping message after exhausting retries", llog.ErrKV(lastErr), llog.KV{"chatID": chatID, "attempts": MaxSendAttempts})
	return lastErr
}
