package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySender struct {
	failures int
	calls    int
	permanent bool
}

func (f *flakySender) Send(chatID, text string) error {
	f.calls++
	if f.calls <= f.failures {
		if f.permanent {
			return &PermanentError{Err: errors.New("404 not found")}
		}
		return errors.New("transient error")
	}
	return nil
}

func TestRetryingSenderSucceedsAfterTransientFailures(t *testing.T) {
	raw := &flakySender{failures: 2}
	s := NewRetryingSender(raw)
	err := s.Send("u1", "hello")
	require.NoError(t, err)
	assert.Equal(t, 3, raw.calls)
}

func TestRetryingSenderGivesUpAfterMaxAttempts(t *testing.T) {
	raw := &flakySender{failures: MaxSendAttempts + 10}
	s := NewRetryingSender(raw)
	err := s.Send("u1", "hello")
	require.Error(t, err)
	assert.Equal(t, MaxSendAttempts, raw.calls)
}

func TestRetryingSenderDropsPermanentFailureImmediately(t *testing.T) {
	raw := &flakySender{failures: 1, permanent: true}
	s := NewRetryingSender(raw)
	err := s.Send("u1", "hello")
	require.Error(t, err)
	assert.Equal(t, 1, raw.calls)
}
