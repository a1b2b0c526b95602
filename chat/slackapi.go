package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nlopes/slack"

	"github.com/levenlabs/go-llog"
)

// slackAPI implements API and the outbound send path on top of
// nlopes/slack's bot-token REST client -- the teacher's own library,
// generalized here from "look up users, post to a fixed webhook" into a
// full bidirectional client.
type slackAPI struct {
	client *slack.Client

	mu        sync.RWMutex
	ownChatID string
	emailByID map[string]string
	idByEmail map[string]string
	refreshed time.Time
}

// NewSlackAPI builds an API backed by a bot token.
func NewSlackAPI(botToken, botID string) (API, error) {
	c := slack.New(botToken)
	a := &slackAPI{client: c, ownChatID: botID}
	if err := a.refresh(); err != nil {
		return nil, fmt.Errorf("loading chat user directory: %w", err)
	}
	return a, nil
}

func (a *slackAPI) refresh() error {
	users, err := a.client.GetUsers()
	if err != nil {
		return err
	}
	emailByID := make(map[string]string, len(users))
	idByEmail := make(map[string]string, len(users))
	for _, u := range users {
		if u.Profile.Email == "" {
			continue
		}
		emailByID[u.ID] = u.Profile.Email
		idByEmail[u.Profile.Email] = u.ID
	}
	a.mu.Lock()
	a.emailByID = emailByID
	a.idByEmail = idByEmail
	a.refreshed = time.Now()
	a.mu.Unlock()
	llog.Debug("refreshed chat user directory", llog.KV{"numUsers": len(users)})
	return nil
}

func (a *slackAPI) refreshIfStale() {
	a.mu.RLock()
	stale := time.Since(a.refreshed) > time.Hour
	a.mu.RUnlock()
	if !stale {
		return
	}
	if err := a.refresh(); err != nil {
		llog.Error("error refreshing chat user directory", llog.ErrKV(err))
	}
}

// OwnChatID implements API.
func (a *slackAPI) OwnChatID() string {
	return a.ownChatID
}

// EmailForChatID resolves a chat-user id to an email from the cached user
// directory, or "" if the id is unknown. It is not part of the API
// interface.
func (a *slackAPI) EmailForChatID(chatID string) string {
	a.refreshIfStale()
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.emailByID[chatID]
}

// ResolveMessage implements API. id is a "channel:timestamp" pointer, the
// shape both the webhook and queue envelopes carry.
func (a *slackAPI) ResolveMessage(id string) (InboundMessage, error) {
	channel, ts, err := splitMessagePointer(id)
	if err != nil {
		return InboundMessage{}, err
	}
	hist, err := a.client.GetChannelHistory(channel, slack.HistoryParameters{
		Latest:    ts,
		Oldest:    ts,
		Inclusive: true,
		Count:     1,
	})
	if err != nil {
		return InboundMessage{}, fmt.Errorf("fetching chat message %s: %w", id, err)
	}
	if len(hist.Messages) == 0 {
		return InboundMessage{}, fmt.Errorf("chat message %s not found", id)
	}
	msg := hist.Messages[0]
	a.refreshIfStale()
	a.mu.RLock()
	email := a.emailByID[msg.User]
	a.mu.RUnlock()
	return InboundMessage{ChatID: msg.User, Email: email, Text: msg.Text}, nil
}

// Send posts text to chatID via a direct message, implementing
// events.Sender.
func (a *slackAPI) Send(chatID, text string) error {
	_, _, err := a.client.PostMessage(chatID, slack.MsgOptionText(text, false), slack.MsgOptionAsUser(true))
	if err == nil {
		return nil
	}
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		return err
	}
	var sce *slack.StatusCodeError
	if errors.As(err, &sce) && sce.Code >= 400 && sce.Code < 500 {
		return &PermanentError{Err: err}
	}
	return err
}

func splitMessagePointer(id string) (channel, ts string, err error) {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == ':' {
			return id[:i], id[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed message pointer %q", id)
}
