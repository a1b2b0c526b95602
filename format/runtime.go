// Package format embeds a sandboxed Lua interpreter that turns structured
// Gerrit event values into human-readable chat messages. It is the one
// opaque boundary the Dispatcher calls through; operators can replace the
// script without recompiling.
package format

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/levenlabs/go-llog"
	"github.com/levenlabs/gerrit-chat-bridge/gerritssh"
	"github.com/levenlabs/gerrit-chat-bridge/subscriber"
)

// auditLog, if set via SetAuditLog, additionally records every formatter
// error (a missing entry point or a failed or timed-out script call) as a
// line, independent of llog's own output -- a standalone file an operator
// can tail without turning up llog's level. A script that returns nil or
// false on purpose is not recorded.
var auditLog io.Writer

// SetAuditLog points formatter error records at w, in
// addition to the normal llog output. Typically a *lumberjack.Logger so
// the file rotates.
func SetAuditLog(w io.Writer) {
	auditLog = w
}

// Watchdog is the maximum time a single script entry point may run before
// its call is canceled and treated as a suppression.
const Watchdog = 200 * time.Millisecond

const (
	entryCommentAdded    = "format_comment_added"
	entryReviewerAdded   = "format_reviewer_added"
	entryChangeMerged    = "format_change_merged"
	entryChangeAbandoned = "format_change_abandoned"
	entryGreeting        = "format_greeting"
	entryHelp            = "format_help"
	entryStatus          = "format_status"
	entryVersionInfo     = "format_version_info"
)

// Runtime holds one loaded script and serializes calls into it. gopher-lua's
// LState is not goroutine-safe, so concurrent Dispatcher calls are
// serialized here rather than given their own LState per call -- cheaper,
// and ordering among calls made under the same mutex is trivially
// preserved, which is all the spec requires ("re-entrant ... or serialized
// by the caller").
type Runtime struct {
	mu   sync.Mutex
	ls   *lua.LState
	path string
}

// Load reads and executes the script at path once, registering its global
// functions as the entry points below. The returned Runtime owns the
// *lua.LState and must be closed with Close when no longer needed.
func Load(path string) (*Runtime, error) {
	ls := lua.NewState(lua.Options{
		// No standard-library globals beyond the libraries opened below:
		// scripts get string/table/math manipulation, nothing that talks
		// to the filesystem or network.
		SkipOpenLibs: true,
	})
	for _, pair := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.StringLibName, lua.OpenString},
		{lua.TabLibName, lua.OpenTable},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := ls.CallByParam(lua.P{Fn: ls.NewFunction(pair.fn), NRet: 0, Protect: true}, lua.LString(pair.name)); err != nil {
			ls.Close()
			return nil, fmt.Errorf("registering lua stdlib %s: %w", pair.name, err)
		}
	}
	// the base library's dangerous escape hatches are not something
	// OpenBase lets us omit piecemeal, so strip them explicitly.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "collectgarbage"} {
		ls.SetGlobal(name, lua.LNil)
	}

	if err := ls.DoFile(path); err != nil {
		ls.Close()
		return nil, fmt.Errorf("loading formatter script %s: %w", path, err)
	}

	return &Runtime{ls: ls, path: path}, nil
}

// Close releases the underlying Lua state.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ls.Close()
}

// call invokes the named global function with args, under the watchdog,
// and returns its first return value as a Lua value (nil when it returned
// nothing; nil or false means "suppress"). Any error -- the function
// doesn't exist, it errors, or it runs past the watchdog -- is logged with
// fingerprint and treated identically to an explicit suppression.
func (r *Runtime) call(fingerprint, entry string, args ...lua.LValue) lua.LValue {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn := r.ls.GetGlobal(entry)
	if fn == lua.LNil {
		llog.Error("formatter script missing entry point", llog.KV{"entry": entry, "fingerprint": fingerprint})
		auditf("missing entry point %s (event %s)", entry, fingerprint)
		return lua.LNil
	}

	ctx, cancel := context.WithTimeout(context.Background(), Watchdog)
	defer cancel()
	r.ls.SetContext(ctx)

	err := r.ls.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	if err != nil {
		llog.Error("formatter script error", llog.ErrKV(err), llog.KV{"entry": entry, "fingerprint": fingerprint})
		auditf("error in %s (event %s): %s", entry, fingerprint, err)
		return lua.LNil
	}
	ret := r.ls.Get(-1)
	r.ls.Pop(1)
	return ret
}

func auditf(format string, args ...interface{}) {
	if auditLog == nil {
		return
	}
	fmt.Fprintf(auditLog, "%s "+format+"\n", append([]interface{}{time.Now().Format(time.RFC3339)}, args...)...)
}

func stringOrSuppress(v lua.LValue) (string, bool) {
	switch v.Type() {
	case lua.LTString:
		return v.String(), true
	case lua.LTNil, lua.LTBool:
		// false/nil both mean "suppress"
		if v.Type() == lua.LTBool && lua.LVAsBool(v) {
			// a script returning `true` isn't a valid message; treat it
			// the same as no message rather than sending the literal
			// word "true".
			return "", false
		}
		return "", false
	default:
		return "", false
	}
}

// FormatCommentAdded renders a comment-added event for one recipient, or
// returns ok=false to mean "suppress". isHuman and isOwnerReply are
// computed by the Dispatcher (see events.Identity.IsHuman and
// events.IsOwnerReply) and passed in, not
// recomputed by the script.
func (r *Runtime) FormatCommentAdded(e gerritssh.Event, flags map[string]bool, isHuman, isOwnerReply bool) (string, bool) {
	v := r.call(e.Fingerprint(), entryCommentAdded,
		eventTable(e),
		flagsTable(flags),
		lua.LBool(isHuman),
		lua.LBool(isOwnerReply),
	)
	return stringOrSuppress(v)
}

// FormatReviewerAdded renders a reviewer-added event.
func (r *Runtime) FormatReviewerAdded(e gerritssh.Event, flags map[string]bool) (string, bool) {
	v := r.call(e.Fingerprint(), entryReviewerAdded, eventTable(e), flagsTable(flags))
	return stringOrSuppress(v)
}

// FormatChangeMerged renders a change-merged event.
func (r *Runtime) FormatChangeMerged(e gerritssh.Event, flags map[string]bool) (string, bool) {
	v := r.call(e.Fingerprint(), entryChangeMerged, eventTable(e), flagsTable(flags))
	return stringOrSuppress(v)
}

// FormatChangeAbandoned renders a change-abandoned event.
func (r *Runtime) FormatChangeAbandoned(e gerritssh.Event, flags map[string]bool) (string, bool) {
	v := r.call(e.Fingerprint(), entryChangeAbandoned, eventTable(e), flagsTable(flags))
	return stringOrSuppress(v)
}

// FormatGreeting implements subscriber.Formatter.
func (r *Runtime) FormatGreeting() string {
	v := r.call("", entryGreeting)
	s, _ := stringOrSuppress(v)
	return s
}

// FormatHelp implements subscriber.Formatter.
func (r *Runtime) FormatHelp() string {
	v := r.call("", entryHelp)
	s, _ := stringOrSuppress(v)
	return s
}

// FormatStatus implements subscriber.Formatter.
func (r *Runtime) FormatStatus(details subscriber.StatusDetails, flags map[string]bool) string {
	dt := r.ls.NewTable()
	dt.RawSetString("enabled", lua.LBool(details.Enabled))
	dt.RawSetString("other_enabled_count", lua.LNumber(details.OtherEnabledCount))
	v := r.call("", entryStatus, dt, flagsTable(flags))
	s, _ := stringOrSuppress(v)
	return s
}

// FormatVersionInfo implements subscriber.Formatter.
func (r *Runtime) FormatVersionInfo(info subscriber.VersionInfo) string {
	it := r.ls.NewTable()
	it.RawSetString("version", lua.LString(info.Version))
	it.RawSetString("go_version", lua.LString(info.GoVersion))
	it.RawSetString("commit", lua.LString(info.Commit))
	v := r.call("", entryVersionInfo, it)
	s, _ := stringOrSuppress(v)
	return s
}
