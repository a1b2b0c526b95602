package events

import (
	"context"
	"sync"

	"github.com/levenlabs/go-llog"
)

// QueueBound is the maximum number of pending outbound messages kept per
// recipient; once full, the oldest queued message is dropped to make room
// for the newest, per the spec's backpressure rule.
const QueueBound = 64

// Sender delivers one rendered message to one chat-user id. The Chat
// Adapter's outbound side implements this.
type Sender interface {
	Send(chatID, text string) error
}

// Outbox fans rendered messages out to per-recipient bounded queues, each
// drained by its own goroutine, so one slow or broken recipient never
// blocks delivery to anyone else.
type Outbox struct {
	ctx  context.Context
	send Sender

	mu     sync.Mutex
	queues map[string]chan string
}

// NewOutbox builds an Outbox that delivers through sender until ctx is
// canceled.
func NewOutbox(ctx context.Context, sender Sender) *Outbox {
	return &Outbox{ctx: ctx, send: sender, queues: map[string]chan string{}}
}

// Enqueue queues text for delivery to chatID, starting that recipient's
// drain goroutine on first use.
func (o *Outbox) Enqueue(chatID, text string) {
	o.mu.Lock()
	q, ok := o.queues[chatID]
	if !ok {
		q = make(chan string, QueueBound)
		o.queues[chatID] = q
		go o.drain(chatID, q)
	}
	o.mu.Unlock()

	select {
	case q <- text:
		return
	default:
	}
	// full: drop the oldest queued message, then retry once.
	select {
	case <-q:
		llog.Warn("dropping oldest queued message, recipient queue full", llog.KV{"chatID": chatID})
	default:
	}
	select {
	case q <- text:
	default:
		llog.Warn("recipient queue still full after drop, dropping new message instead", llog.KV{"chatID": chatID})
	}
}

func (o *Outbox) drain(chatID string, q chan string) {
	for {
		select {
		case <-o.ctx.Done():
			return
		case text := <-q:
			if err := o.send.Send(chatID, text); err != nil {
				llog.Error("error sending chat message", llog.ErrKV(err), llog.KV{"chatID": chatID})
			}
		}
	}
}
