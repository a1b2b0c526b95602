package gerritssh

import (
	"fmt"
	"strconv"

	"github.com/levenlabs/go-llog"
)

const (
	// EventTypeAssigneeChanged is sent when the assignee of a change has been
	// modified
	EventTypeAssigneeChanged = "assignee-changed"

	// EventTypeChangeAbandoned is sent when a change has been abandoned
	EventTypeChangeAbandoned = "change-abandoned"

	// EventTypeChangeMerged is sent when a change has been merged into the git
	// repository
	EventTypeChangeMerged = "change-merged"

	// EventTypeChangeRestored is sent when an abandoned change has been restored
	EventTypeChangeRestored = "change-restored"

	// EventTypeCommentAdded is sent when a review comment has been posted on
	// a change
	EventTypeCommentAdded = "comment-added"

	// EventTypeDroppedOutput is sent to notify a client that events have been
	// dropped
	EventTypeDroppedOutput = "dropped-output"

	// EventTypeHashtagsChanged is sent when the hashtags have been added to or
	// removed from a change
	EventTypeHashtagsChanged = "hashtags-changed"

	// EventTypeProjectCreated is sent when a new project has been created
	EventTypeProjectCreated = "project-created"

	// EventTypePatchSetCreated is sent when a new change has been uploaded, or
	// a new patch set has been uploaded to an existing change
	EventTypePatchSetCreated = "patchset-created"

	// EventTypeRefUpdated is sent when a reference is updated in a git repository
	EventTypeRefUpdated = "ref-updated"

	// EventTypeReviewerAdded is sent when a reviewer is added to a change
	EventTypeReviewerAdded = "reviewer-added"

	// EventTypeReviewerDeleted is sent when a reviewer (with a vote) is removed
	// from a change
	EventTypeReviewerDeleted = "reviewer-deleted"

	// EventTypeTopicChanged is sent when the topic of a change has been changed
	EventTypeTopicChanged = "topic-changed"

	// EventTypeWorkInProgressStateChanged is sent when the the WIP state of the
	// change has changed
	EventTypeWorkInProgressStateChanged = "wip-state-changed"

	// EventTypePrivateStateChanged is sent when the the private state of the
	// change has changed
	EventTypePrivateStateChanged = "private-state-changed"

	// EventTypeVoteDeleted is sent when a vote was removed from a change
	EventTypeVoteDeleted = "vote-deleted"

	// EventTypeRefReplicationScheduled is sent when replication is scheduled for a ref
	EventTypeRefReplicationScheduled = "ref-replication-scheduled"

	// EventTypeRefReplicated is sent when a ref has been replicated
	EventTypeRefReplicated = "ref-replicated"

	// EventTypeRefReplicationDone is sent when replication is done for a ref
	EventTypeRefReplicationDone = "ref-replication-done"
)

// Event describes a major event that occured in the gerrit server
// from https://gerrit-review.googlesource.com/Documentation/cmd-stream-events.html
// structures from https://gerrit-review.googlesource.com/Documentation/json.html
type Event struct {
	Type string `json:"type"`

	Change    EventChange    `json:"change"`
	PatchSet  EventPatchSet  `json:"patchSet"`
	RefUpdate EventRefUpdate `json:"refUpdate"`

	Author    EventAccount `json:"author"`
	Submitter EventAccount `json:"submitter"`
	Reviewer  EventAccount `json:"reviewer"`
	Remover   EventAccount `json:"remover"`
	Changer   EventAccount `json:"changer"`
	Uploader  EventAccount `json:"uploader"`
	Editor    EventAccount `json:"editor"`
	Abandoner EventAccount `json:"abandoner"`
	Restorer  EventAccount `json:"restorer"`

	Approvals   []EventApproval `json:"approvals"`
	Added       []string        `json:"added"`
	Removed     []string        `json:"removed"`
	Hashtags    []string        `json:"hashtags"`
	ProjectName string          `json:"projectName"`
	ProjectHead string          `json:"projectHead"`
	OldTopic    string          `json:"oldTopic"`
	Comment     string          `json:"comment"`
	Reason      string          `json:"reason"`
	NewRevision string          `json:"newRev"`
	OldAssignee EventAccount    `json:"oldAssignee"`
	TargetNode  string          `json:"targetNode"`
	Status      string          `json:"status"`
	RefStatus   string          `json:"refStatus"`
	NodesCount  int64           `json:"nodesCount"`

	TSCreated int64 `json:"eventCreatedOn"`
}

// Fingerprint returns a short, stable identifier for the event, suitable for
// correlating a script error or a suppressed message back to the event that
// produced it without logging the whole payload.
func (e Event) Fingerprint() string {
	if e.Change.Number != 0 {
		return fmt.Sprintf("%s:%d:%d", e.Type, e.Change.Number, e.PatchSet.Number)
	}
	return e.Type
}

// IsKnown reports whether Type is one of the event types this package
// declares constants for. Unknown types are never rejected; they are still
// parsed into this same struct (unrecognized fields simply stay zero), but
// callers that need to bucket them as "other" can use this to decide.
func (e Event) IsKnown() bool {
	_, ok := knownEventTypes[e.Type]
	return ok
}

var knownEventTypes = map[string]struct{}{
	EventTypeAssigneeChanged:            {},
	EventTypeChangeAbandoned:            {},
	EventTypeChangeMerged:               {},
	EventTypeChangeRestored:             {},
	EventTypeCommentAdded:               {},
	EventTypeDroppedOutput:              {},
	EventTypeHashtagsChanged:            {},
	EventTypeProjectCreated:             {},
	EventTypePatchSetCreated:            {},
	EventTypeRefUpdated:                 {},
	EventTypeReviewerAdded:              {},
	EventTypeReviewerDeleted:            {},
	EventTypeTopicChanged:               {},
	EventTypeWorkInProgressStateChanged: {},
	EventTypePrivateStateChanged:        {},
	EventTypeVoteDeleted:                {},
	EventTypeRefReplicationScheduled:    {},
	EventTypeRefReplicated:              {},
	EventTypeRefReplicationDone:         {},
}

// KV returns a KV for the given event
func (e Event) KV() llog.KV {
	var project string
	if e.Change.Project != "" {
		project = e.Change.Project
	} else if e.ProjectName != "" {
		project = e.ProjectName
	}
	return llog.KV{
		"type":    e.Type,
		"project": project,
	}
}

// EventChange describes a change inside an Event
type EventChange struct {
	Project       string         `json:"project"`
	Branch        string         `json:"branch"`
	Topic         string         `json:"topic"`
	ChangeID      string         `json:"id"`
	Number        int64          `json:"number"`
	Subject       string         `json:"subject"`
	Owner         EventAccount   `json:"owner"`
	URL           string         `json:"url"`
	CommitMessage string         `json:"commitMessage"`
	Status        ChangeStatus   `json:"status"`
	Open          bool           `json:"open"`
	Private       bool           `json:"private"`
	WIP           bool           `json:"wip"`
	// SubmitRecords is Gerrit's computed submit-readiness verdict, present
	// when stream-events is configured to include it. Absent otherwise;
	// Submittable() degrades gracefully to false.
	SubmitRecords []SubmitRecord `json:"submitRecords"`
	TSCreated     int64          `json:"createdOn"`
}

// EventPatchSet describes a patch set inside an Event
type EventPatchSet struct {
	Number         int64        `json:"number"`
	Revision       string       `json:"revision"`
	Parents        []string     `json:"parents"`
	Ref            string       `json:"ref"`
	Uploader       EventAccount `json:"uploader"`
	Kind           PatchSetKind `json:"kind"`
	Author         EventAccount `json:"author"`
	SizeInsertions int64        `json:"sizeInsertions"`
	SizeDeletions  int64        `json:"sizeDeletions"`
	// Comments holds inline file/line comments, backfilled via the Gerrit
	// REST API (stream-events itself carries only the top-level Comment
	// string); see events.Dispatcher's comment-added handling.
	Comments  []InlineComment `json:"-"`
	TSCreated int64           `json:"createdOn"`
}

// InlineComment is a single inline file/line review comment on a patch set.
type InlineComment struct {
	File     string
	Line     int
	Message  string
	Reviewer EventAccount
}

// EventAccount describes a user account inside an Event
type EventAccount struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// EventRefUpdate describes a ref inside an Event
type EventRefUpdate struct {
	OldRevision string `json:"oldRev"`
	// NewRevision, if 0000000000000000000000000000000000000000, means it was
	// deleted
	NewRevision string `json:"newRev"`
	RefName     string `json:"refName"`
	Project     string `json:"project"`
}

// EventApproval describes an approval inside an Event. Gerrit sends Value
// and OldValue as decimal strings (e.g. "+2", "-1"); use IntValue/IntOldValue
// to get the numeric form the data model works with.
type EventApproval struct {
	Type        string       `json:"type"`
	Description string       `json:"description"`
	Value       string       `json:"value"`
	OldValue    string       `json:"oldValue"`
	By          EventAccount `json:"by"`
}

// IntValue parses Value as an integer, defaulting to 0 if it is empty or
// malformed.
func (a EventApproval) IntValue() int {
	return parseApprovalInt(a.Value)
}

// IntOldValue parses OldValue as an integer, defaulting to 0 if it is empty
// or malformed.
func (a EventApproval) IntOldValue() int {
	return parseApprovalInt(a.OldValue)
}

// Changed reports whether this approval actually changed the label's value.
// Per the data model, old_value == value means unchanged and must be
// ignored by every renderer.
func (a EventApproval) Changed() bool {
	if a.OldValue == "" {
		// Gerrit omits oldValue entirely for a brand new vote; that is
		// always a change.
		return true
	}
	return a.IntValue() != a.IntOldValue()
}

func parseApprovalInt(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
