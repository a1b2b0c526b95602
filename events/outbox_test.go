package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu  sync.Mutex
	got []string
}

func (s *recordingSender) Send(chatID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, chatID+":"+text)
	return nil
}

func (s *recordingSender) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.got))
	copy(out, s.got)
	return out
}

func TestOutboxDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := &recordingSender{}
	out := NewOutbox(ctx, sender)

	out.Enqueue("U1", "one")
	out.Enqueue("U1", "two")
	out.Enqueue("U1", "three")

	require.Eventually(t, func() bool {
		return len(sender.snapshot()) == 3
	}, time.Second, time.Millisecond)

	assert.Equal(t, []string{"U1:one", "U1:two", "U1:three"}, sender.snapshot())
}

func TestOutboxDropsOldestWhenFull(t *testing.T) {
	// block the drain goroutine on its very first send, so every
	// subsequent Enqueue call piles up in the channel instead of draining.
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	var once sync.Once
	sender := &recordingSender{}
	blockingSender := sendFunc(func(chatID, text string) error {
		once.Do(func() {
			started <- struct{}{}
			<-block
		})
		return sender.Send(chatID, text)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := NewOutbox(ctx, blockingSender)

	out.Enqueue("U1", "first") // picked up immediately, blocks the drain goroutine
	<-started

	for i := 0; i < QueueBound+5; i++ {
		out.Enqueue("U1", "filler")
	}
	out.Enqueue("U1", "last")

	close(block)

	require.Eventually(t, func() bool {
		got := sender.snapshot()
		return len(got) > 0 && got[len(got)-1] == "U1:last"
	}, time.Second, time.Millisecond)

	// QueueBound+5 fillers plus "last" were queued after "first" was
	// already pulled off; at most QueueBound of them can have survived
	// the drop-oldest policy, so some fillers were necessarily dropped
	// rather than delivered.
	got := sender.snapshot()
	assert.LessOrEqual(t, len(got), QueueBound+1)
}

type sendFunc func(chatID, text string) error

func (f sendFunc) Send(chatID, text string) error { return f(chatID, text) }
