package format

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/levenlabs/gerrit-chat-bridge/gerritssh"
)

// flagsTable converts a flags snapshot into a Lua table keyed by flag name.
func flagsTable(flags map[string]bool) *lua.LTable {
	t := &lua.LTable{}
	for k, v := range flags {
		t.RawSetString(k, lua.LBool(v))
	}
	return t
}

func accountTable(a gerritssh.EventAccount) *lua.LTable {
	t := &lua.LTable{}
	t.RawSetString("name", lua.LString(a.Name))
	t.RawSetString("email", lua.LString(a.Email))
	t.RawSetString("username", lua.LString(a.Username))
	return t
}

func approvalsTable(approvals []gerritssh.EventApproval) *lua.LTable {
	t := &lua.LTable{}
	for _, a := range approvals {
		if !a.Changed() {
			// old_value == value is a no-op vote; it contributes nothing
			// to any rendered message, per the data model invariant.
			continue
		}
		at := &lua.LTable{}
		at.RawSetString("type", lua.LString(a.Type))
		at.RawSetString("description", lua.LString(a.Description))
		at.RawSetString("value", lua.LNumber(a.IntValue()))
		at.RawSetString("old_value", lua.LNumber(a.IntOldValue()))
		at.RawSetString("by", accountTable(a.By))
		t.Append(at)
	}
	return t
}

func inlineCommentsTable(comments []gerritssh.InlineComment) *lua.LTable {
	t := &lua.LTable{}
	for _, c := range comments {
		ct := &lua.LTable{}
		ct.RawSetString("file", lua.LString(c.File))
		ct.RawSetString("line", lua.LNumber(c.Line))
		ct.RawSetString("message", lua.LString(c.Message))
		ct.RawSetString("reviewer", accountTable(c.Reviewer))
		t.Append(ct)
	}
	return t
}

func changeTable(c gerritssh.EventChange) *lua.LTable {
	t := &lua.LTable{}
	t.RawSetString("project", lua.LString(c.Project))
	t.RawSetString("branch", lua.LString(c.Branch))
	t.RawSetString("topic", lua.LString(c.Topic))
	t.RawSetString("number", lua.LNumber(c.Number))
	t.RawSetString("subject", lua.LString(c.Subject))
	t.RawSetString("owner", accountTable(c.Owner))
	t.RawSetString("url", lua.LString(c.URL))
	t.RawSetString("status", lua.LString(string(c.Status)))
	t.RawSetString("submittable", lua.LBool(c.Submittable()))
	return t
}

func patchSetTable(p gerritssh.EventPatchSet) *lua.LTable {
	t := &lua.LTable{}
	t.RawSetString("number", lua.LNumber(p.Number))
	t.RawSetString("revision", lua.LString(p.Revision))
	t.RawSetString("kind", lua.LString(string(p.Kind)))
	t.RawSetString("size_insertions", lua.LNumber(p.SizeInsertions))
	t.RawSetString("size_deletions", lua.LNumber(p.SizeDeletions))
	t.RawSetString("comments", inlineCommentsTable(p.Comments))
	return t
}

// eventTable converts a Gerrit Event into the plain Lua table a script
// sees: strings, numbers, booleans and nested tables only. Scripts never
// receive a Go type, ruling out any method-call escape hatch back into Go.
func eventTable(e gerritssh.Event) *lua.LTable {
	t := &lua.LTable{}
	t.RawSetString("type", lua.LString(e.Type))
	t.RawSetString("change", changeTable(e.Change))
	t.RawSetString("patch_set", patchSetTable(e.PatchSet))
	t.RawSetString("author", accountTable(e.Author))
	t.RawSetString("submitter", accountTable(e.Submitter))
	t.RawSetString("reviewer", accountTable(e.Reviewer))
	t.RawSetString("abandoner", accountTable(e.Abandoner))
	t.RawSetString("comment", lua.LString(e.Comment))
	t.RawSetString("reason", lua.LString(e.Reason))
	t.RawSetString("approvals", approvalsTable(e.Approvals))
	return t
}
