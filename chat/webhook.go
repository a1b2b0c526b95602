package chat

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/levenlabs/go-llog"
)

// webhookEnvelope is the pointer-style payload the chat service POSTs:
// it names the message to fetch, not the message body itself.
type webhookEnvelope struct {
	MessageID string `json:"message_id"`
}

// WebhookAdapter is the HTTP-ingress Chat Adapter variant: it binds a
// listener, verifies a shared-secret header on each POST, resolves the
// referenced message via API, and emits an InboundMessage. Grounded on
// gorilla/mux, the pack's common choice for webhook-style HTTP ingress.
type WebhookAdapter struct {
	addr   string
	secret string
	api    API
	srv    *http.Server
}

// NewWebhookAdapter builds a WebhookAdapter listening on addr, rejecting
// any request whose X-Bot-Secret header doesn't match secret.
func NewWebhookAdapter(addr, secret string, api API) *WebhookAdapter {
	return &WebhookAdapter{addr: addr, secret: secret, api: api}
}

// Run implements Adapter. It blocks serving HTTP until ctx is canceled.
func (w *WebhookAdapter) Run(ctx context.Context, out chan<- InboundMessage) error {
	r := mux.NewRouter()
	r.HandleFunc("/webhook", w.handle(out)).Methods(http.MethodPost)

	w.srv = &http.Server{
		Addr:         w.addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		llog.Info("webhook adapter listening", llog.KV{"addr": w.addr})
		errCh <- w.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (w *WebhookAdapter) handle(out chan<- InboundMessage) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		// reqID ties together whatever this request logs, since nothing in
		// the inbound payload itself is a usable correlation key.
		reqID := uuid.New().String()

		if !validSecret(r.Header.Get("X-Bot-Secret"), w.secret) {
			llog.Warn("webhook request with bad secret", llog.KV{"reqID": reqID})
			rw.WriteHeader(http.StatusUnauthorized)
			return
		}

		var env webhookEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			llog.Warn("malformed webhook envelope", llog.ErrKV(err), llog.KV{"reqID": reqID})
			rw.WriteHeader(http.StatusBadRequest)
			return
		}

		msg, err := w.api.ResolveMessage(env.MessageID)
		if err != nil {
			llog.Error("error resolving webhook message", llog.ErrKV(err), llog.KV{"messageID": env.MessageID, "reqID": reqID})
			rw.WriteHeader(http.StatusAccepted) // ack anyway; Gerrit/chat shouldn't retry forever
			return
		}
		if msg.ChatID == w.api.OwnChatID() {
			// own-messages filter: never react to the bot's own posts.
			rw.WriteHeader(http.StatusOK)
			return
		}

		out <- msg
		rw.WriteHeader(http.StatusOK)
	}
}

// validSecret does a constant-time comparison so the shared secret can't
// be recovered via timing side channels on this public endpoint.
func validSecret(got, want string) bool {
	if want == "" {
		return true
	}
	return hmac.Equal([]byte(got), []byte(want))
}

// RegisterWebhook tells the chat service, over its plain HTTP management
// endpoint, to deliver future events to publicURL, replacing any prior
// registration. This isn't a REST call any example in the pack's domain
// covers (it's bot-app configuration, not a domain concern any pack
// library owns), so it's a direct net/http call.
func RegisterWebhook(endpoint, botToken, publicURL string) error {
	body, err := json.Marshal(map[string]string{"target_url": publicURL})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPut, endpoint+"/webhooks", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+botToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return errors.New("chat service rejected webhook registration: " + resp.Status)
	}
	return nil
}
