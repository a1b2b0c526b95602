package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	ownChatID string
	messages  map[string]InboundMessage
}

func (f *fakeAPI) OwnChatID() string { return f.ownChatID }

func (f *fakeAPI) Send(chatID, text string) error { return nil }

func (f *fakeAPI) ResolveMessage(id string) (InboundMessage, error) {
	m, ok := f.messages[id]
	if !ok {
		return InboundMessage{}, fmt.Errorf("no such message %q", id)
	}
	return m, nil
}

func TestValidSecret(t *testing.T) {
	assert.True(t, validSecret("", ""))
	assert.True(t, validSecret("abc", "abc"))
	assert.False(t, validSecret("abc", "xyz"))
	assert.False(t, validSecret("", "xyz"))
}

func TestWebhookAdapterRejectsBadSecret(t *testing.T) {
	api := &fakeAPI{ownChatID: "bot"}
	w := NewWebhookAdapter("127.0.0.1:0", "s3cret", api)
	out := make(chan InboundMessage, 1)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	w.handle(out)(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookAdapterFiltersOwnMessages(t *testing.T) {
	api := &fakeAPI{
		ownChatID: "bot",
		messages: map[string]InboundMessage{
			"m1": {ChatID: "bot", Text: "hi"},
		},
	}
	w := NewWebhookAdapter("127.0.0.1:0", "", api)
	out := make(chan InboundMessage, 1)

	body, _ := json.Marshal(webhookEnvelope{MessageID: "m1"})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	w.handle(out)(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	select {
	case <-out:
		t.Fatal("own message should have been filtered")
	default:
	}
}

func TestWebhookAdapterEmitsOthersMessages(t *testing.T) {
	api := &fakeAPI{
		ownChatID: "bot",
		messages: map[string]InboundMessage{
			"m1": {ChatID: "alice", Email: "alice@example.com", Text: "enable"},
		},
	}
	w := NewWebhookAdapter("127.0.0.1:0", "", api)
	out := make(chan InboundMessage, 1)

	body, _ := json.Marshal(webhookEnvelope{MessageID: "m1"})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	w.handle(out)(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	select {
	case msg := <-out:
		assert.Equal(t, "alice", msg.ChatID)
		assert.Equal(t, "enable", msg.Text)
	case <-time.After(time.Second):
		t.Fatal("expected a message")
	}
}

func TestSplitMessagePointer(t *testing.T) {
	ch, ts, err := splitMessagePointer("C123:1234567890.000100")
	require.NoError(t, err)
	assert.Equal(t, "C123", ch)
	assert.Equal(t, "1234567890.000100", ts)

	_, _, err = splitMessagePointer("no-colon-here")
	assert.Error(t, err)
}
