// Package chat implements the Chat Adapter: bidirectional traffic
// against a bot identity, ingress via either a webhook listener or a
// pulled queue, egress via a shared outbound sender with bounded retry.
package chat

import "context"

// InboundMessage is one chat message received from a human (or another
// bot), already resolved from whatever pointer-style envelope the
// transport delivered.
type InboundMessage struct {
	// ChatID is the sender's opaque chat-user id, the same identifier
	// subscriber.Subscriber.ChatID stores.
	ChatID string
	// Email is the sender's email address, used to join against Gerrit
	// identities. May be empty if the chat service doesn't expose one.
	Email string
	// Text is the raw message body.
	Text string
}

// Adapter is the ingress side of the Chat Adapter: it emits
// InboundMessages until ctx is canceled.
type Adapter interface {
	Run(ctx context.Context, out chan<- InboundMessage) error
}

// API is the subset of the chat service's REST API both Adapter
// implementations need: resolving a pointer-style envelope into an
// actual message, and identifying the bot's own chat-user id so its own
// messages can be filtered out at ingress.
type API interface {
	// ResolveMessage fetches the body and author of the message
	// identified by id.
	ResolveMessage(id string) (InboundMessage, error)
	// OwnChatID returns the bot's own chat-user id.
	OwnChatID() string
	// Send posts text to chatID. Wrapped by RetryingSender before being
	// handed to the Dispatcher as an events.Sender.
	Send(chatID, text string) error
}
