// Command gerrit-chat-bridge runs the event-mediation engine: it streams
// Gerrit events over SSH, renders them through a sandboxed Lua formatter,
// and delivers them to chat subscribers, while also answering chat
// commands that manage those subscribers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	gort "runtime"
	"syscall"
	"time"

	"github.com/andygrunwald/go-gerrit"
	"github.com/spf13/cobra"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/levenlabs/go-llog"

	"github.com/levenlabs/gerrit-chat-bridge/chat"
	"github.com/levenlabs/gerrit-chat-bridge/config"
	"github.com/levenlabs/gerrit-chat-bridge/events"
	"github.com/levenlabs/gerrit-chat-bridge/format"
	"github.com/levenlabs/gerrit-chat-bridge/gerritrest"
	"github.com/levenlabs/gerrit-chat-bridge/gerritssh"
	"github.com/levenlabs/gerrit-chat-bridge/store"
	"github.com/levenlabs/gerrit-chat-bridge/subscriber"
)

// Version and Commit are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

var (
	cfgPath  string
	logLevel string
)

func main() {
	root := &cobra.Command{
		Use:   "gerrit-chat-bridge",
		Short: "Bridges Gerrit stream-events to a chat service",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./gerrit-chat-bridge.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level for llog (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the bridge until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the bridge's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(versionInfo().Version)
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		llog.Fatal("fatal error", llog.ErrKV(err))
	}
}

func versionInfo() subscriber.VersionInfo {
	return subscriber.VersionInfo{Version: Version, Commit: Commit, GoVersion: gort.Version()}
}

func serve() error {
	if err := llog.SetLevelFromString(logLevel); err != nil {
		return fmt.Errorf("invalid log-level: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		llog.Fatal("configuration error", llog.ErrKV(err))
	}

	runtime, err := format.Load(cfg.Format.ScriptPath)
	if err != nil {
		llog.Fatal("error loading formatter script", llog.ErrKV(err))
	}
	defer runtime.Close()

	if cfg.Bot.DebugEventsPath != "" {
		setupEventAudit(cfg.Bot.DebugEventsPath)
	}

	set := store.Load(cfg.Bot.StatePath)
	reg := subscriber.NewRegistry(set)
	saver := store.NewSaver(cfg.Bot.StatePath, reg)

	sshc, err := buildSSHClient(cfg)
	if err != nil {
		llog.Fatal("error building gerrit ssh client", llog.ErrKV(err))
	}

	restClient, err := buildRESTClient(cfg)
	if err != nil {
		llog.Fatal("error building gerrit rest client", llog.ErrKV(err))
	}

	chatAPI, err := chat.NewSlackAPI(cfg.Spark.BotToken, cfg.Spark.BotID)
	if err != nil {
		llog.Fatal("error building chat api client", llog.ErrKV(err))
	}

	adapter, err := buildChatAdapter(cfg, chatAPI)
	if err != nil {
		llog.Fatal("error building chat adapter", llog.ErrKV(err))
	}
	if cfg.Spark.Endpoint != "" && cfg.Spark.WebhookURL != "" {
		if err := chat.RegisterWebhook(cfg.Spark.Endpoint, cfg.Spark.BotToken, cfg.Spark.WebhookURL); err != nil {
			llog.Error("error self-registering webhook url", llog.ErrKV(err))
		}
	}

	identity := events.NewIdentity(cfg.Spark.BotUsernames)
	sender := chat.NewRetryingSender(chatAPI)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		llog.Info("shutdown signal received")
		cancel()
	}()

	eventCh := make(chan gerritssh.Event, 64)
	stateCh := make(chan gerritssh.StateChange, 8)
	go logStreamState(stateCh)
	go sshc.Run(ctx, eventCh, stateCh)

	outbox := events.NewOutbox(ctx, sender)
	dispatcher := events.NewDispatcher(reg, runtime, restClient, identity, outbox)
	go dispatcher.Run(ctx, eventCh)

	inboundCh := make(chan chat.InboundMessage, 64)
	go runAdapter(ctx, adapter, inboundCh)

	cmdHandler := subscriber.NewHandler(reg, runtime, versionInfo())
	go runCommandLoop(ctx, inboundCh, cmdHandler, sender)

	saverDone := make(chan struct{})
	go func() {
		saver.Run(ctx)
		close(saverDone)
	}()

	<-ctx.Done()
	llog.Info("shutting down")
	// wait for the saver's final snapshot before the process exits.
	<-saverDone
	return nil
}

func buildSSHClient(cfg *config.Config) (*gerritssh.Client, error) {
	pk, err := os.ReadFile(cfg.Gerrit.PrivKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading gerrit private key: %w", err)
	}
	var hostKey []byte
	if cfg.Gerrit.HostKeyPath != "" {
		hostKey, err = os.ReadFile(cfg.Gerrit.HostKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading gerrit host key: %w", err)
		}
	}
	addr := fmt.Sprintf("%s:%d", cfg.Gerrit.Hostname, cfg.Gerrit.Port)
	c, err := gerritssh.NewClient(addr, cfg.Gerrit.Username, pk, hostKey)
	if err != nil {
		return nil, err
	}
	c.KeepaliveInterval = time.Duration(cfg.Gerrit.KeepaliveSeconds) * time.Second
	c.KeepaliveMaxMissed = cfg.Gerrit.KeepaliveMaxMissed
	return c, nil
}

func buildRESTClient(cfg *config.Config) (gerritrest.Client, error) {
	if cfg.Gerrit.RESTEndpoint == "" {
		return nil, nil
	}
	c, err := gerrit.NewClient(cfg.Gerrit.RESTEndpoint, nil)
	if err != nil {
		return nil, err
	}
	c.Authentication.SetBasicAuth(cfg.Gerrit.Username, cfg.Gerrit.RESTPassword)
	return gerritrest.New(c), nil
}

func buildChatAdapter(cfg *config.Config, api chat.API) (chat.Adapter, error) {
	if cfg.Spark.SQS != "" {
		return chat.NewQueueAdapter(api, cfg.Spark.SQSRegion, cfg.Spark.SQS)
	}
	return chat.NewWebhookAdapter(cfg.Spark.ListenAddr, cfg.Spark.Secret, api), nil
}

func runAdapter(ctx context.Context, adapter chat.Adapter, out chan<- chat.InboundMessage) {
	if err := adapter.Run(ctx, out); err != nil {
		llog.Error("chat adapter exited with error", llog.ErrKV(err))
	}
}

func runCommandLoop(ctx context.Context, in <-chan chat.InboundMessage, h *subscriber.Handler, sender *chat.RetryingSender) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-in:
			result := h.Handle(msg.ChatID, msg.Email, msg.Text)
			if result.Reply == "" {
				continue
			}
			if err := sender.Send(msg.ChatID, result.Reply); err != nil {
				llog.Error("error replying to chat command", llog.ErrKV(err), llog.KV{"chatID": msg.ChatID})
			}
		}
	}
}

func logStreamState(ch <-chan gerritssh.StateChange) {
	for sc := range ch {
		kv := llog.KV{"state": sc.State.String()}
		if sc.Err != nil {
			llog.Warn("gerrit stream state change", llog.ErrKV(sc.Err), kv)
			continue
		}
		llog.Info("gerrit stream state change", kv)
	}
}

// setupEventAudit points a rotating log file at every formatter
// error, for offline debugging -- the teacher's debugEvents/
// lumberjack idiom in main.go, adapted from a second blocking SSH session
// dumping raw stream-events lines into a sink for the Formatter
// Runtime's own error log.
func setupEventAudit(path string) {
	format.SetAuditLog(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 3,
	})
}
