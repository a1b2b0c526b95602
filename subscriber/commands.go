package subscriber

import (
	"fmt"
	"strings"

	"github.com/levenlabs/go-llog"
)

// CommandResult is what a Command Handler invocation produces for the
// Chat Adapter to send back to the requester. A zero-value Reply means
// no reply is sent (never relied upon today, but keeps the door open for
// ack-only commands).
type CommandResult struct {
	Reply string
}

// Formatter is the subset of the Formatter Runtime the command handler
// needs, kept as an interface here so this package doesn't import format
// (which would create an import cycle: format needs subscriber.StatusDetails
// and subscriber.VersionInfo).
type Formatter interface {
	FormatGreeting() string
	FormatHelp() string
	FormatStatus(details StatusDetails, flags map[string]bool) string
	FormatVersionInfo(info VersionInfo) string
}

// StatusDetails is what `status` reports: the subscriber's own enabled
// state and how many other subscribers are currently enabled.
type StatusDetails struct {
	Enabled           bool
	OtherEnabledCount int
}

// VersionInfo is passed through to format_version_info verbatim.
type VersionInfo struct {
	Version   string
	GoVersion string
	Commit    string
}

// Handler processes the bot command grammar against a Registry, producing
// a reply for the Chat Adapter to send back. It is the sole mutator of
// subscriber state (via Registry.Mutate/GetOrCreate).
type Handler struct {
	reg  *Registry
	fmt  Formatter
	info VersionInfo
}

// NewHandler builds a command Handler.
func NewHandler(reg *Registry, formatter Formatter, info VersionInfo) *Handler {
	return &Handler{reg: reg, fmt: formatter, info: info}
}

// Handle parses and executes one inbound chat message's text as a
// command, scoped to the sender (chatID, email). The leading keyword is
// matched case-insensitively; everything else is whitespace-tokenized.
func (h *Handler) Handle(chatID, email, text string) CommandResult {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return CommandResult{Reply: h.fmt.FormatGreeting()}
	}
	keyword := strings.ToLower(fields[0])
	args := fields[1:]

	switch keyword {
	case "enable":
		return h.handleEnable(chatID, email, args)
	case "disable":
		return h.handleDisable(chatID, email, args)
	case "filter":
		return h.handleFilter(chatID, email, args)
	case "status":
		return h.handleStatus(chatID, email)
	case "help":
		return CommandResult{Reply: h.fmt.FormatHelp()}
	case "version":
		return CommandResult{Reply: h.fmt.FormatVersionInfo(h.info)}
	default:
		return CommandResult{Reply: h.fmt.FormatGreeting()}
	}
}

func (h *Handler) handleEnable(chatID, email string, args []string) CommandResult {
	if len(args) == 0 {
		// A record can exist before the first `enable` -- `status` creates
		// one via GetOrCreate -- so "brand new" has to mean "never
		// mutated," not "no record at all." A never-mutated record's
		// CreatedAt/UpdatedAt are still the same timestamp GetOrCreate
		// stamped them with; Mutate always moves UpdatedAt past CreatedAt.
		existing, existed := h.reg.ByEmail(email)
		firstEnable := !existed || existing.CreatedAt.Equal(existing.UpdatedAt)
		h.reg.Mutate(chatID, email, func(s *Subscriber) {
			s.ChatID = chatID
			s.Enabled = true
		})
		if firstEnable {
			return CommandResult{Reply: h.fmt.FormatGreeting()}
		}
		return CommandResult{Reply: "notifications enabled"}
	}

	flagName := args[0]
	if !IsKnownFlag(flagName) {
		return CommandResult{Reply: fmt.Sprintf("unknown flag %q", flagName)}
	}
	h.reg.Mutate(chatID, email, func(s *Subscriber) {
		if s.Flags == nil {
			s.Flags = Flags{}
		}
		s.Flags[Flag(flagName)] = true
	})
	return CommandResult{Reply: fmt.Sprintf("enabled %s", flagName)}
}

func (h *Handler) handleDisable(chatID, email string, args []string) CommandResult {
	if len(args) == 0 {
		h.reg.Mutate(chatID, email, func(s *Subscriber) {
			s.Enabled = false
		})
		return CommandResult{Reply: "notifications disabled"}
	}

	flagName := args[0]
	if !IsKnownFlag(flagName) {
		return CommandResult{Reply: fmt.Sprintf("unknown flag %q", flagName)}
	}
	h.reg.Mutate(chatID, email, func(s *Subscriber) {
		if s.Flags == nil {
			s.Flags = Flags{}
		}
		s.Flags[Flag(flagName)] = false
	})
	return CommandResult{Reply: fmt.Sprintf("disabled %s", flagName)}
}

func (h *Handler) handleFilter(chatID, email string, args []string) CommandResult {
	if len(args) == 0 {
		return CommandResult{Reply: "usage: filter <regex> | filter enable | filter disable"}
	}

	switch strings.ToLower(args[0]) {
	case "enable":
		var ok bool
		h.reg.Mutate(chatID, email, func(s *Subscriber) {
			if s.Filter == nil {
				return
			}
			s.Filter.Enabled = true
			ok = true
		})
		if !ok {
			return CommandResult{Reply: "no filter set"}
		}
		return CommandResult{Reply: "filter enabled"}
	case "disable":
		h.reg.Mutate(chatID, email, func(s *Subscriber) {
			if s.Filter != nil {
				s.Filter.Enabled = false
			}
		})
		return CommandResult{Reply: "filter disabled"}
	default:
		pattern := strings.Join(args, " ")
		f := &Filter{Pattern: pattern, Enabled: true}
		if err := f.Compile(); err != nil {
			llog.Warn("rejecting invalid subscriber filter", llog.KV{"email": email, "pattern": pattern, "err": err.Error()})
			return CommandResult{Reply: fmt.Sprintf("invalid regex: %s", err.Error())}
		}
		h.reg.Mutate(chatID, email, func(s *Subscriber) {
			s.Filter = f
		})
		return CommandResult{Reply: "filter set"}
	}
}

func (h *Handler) handleStatus(chatID, email string) CommandResult {
	s, _ := h.reg.GetOrCreate(chatID, email)
	details := StatusDetails{
		Enabled:           s.Enabled,
		OtherEnabledCount: h.reg.CountEnabled(chatID),
	}
	return CommandResult{Reply: h.fmt.FormatStatus(details, s.FlagSnapshot())}
}
