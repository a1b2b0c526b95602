package gerritssh

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventApprovalChanged(t *testing.T) {
	cases := []struct {
		name string
		a    EventApproval
		want bool
	}{
		{"new vote, no old value", EventApproval{Value: "2"}, true},
		{"unchanged", EventApproval{Value: "2", OldValue: "2"}, false},
		{"changed", EventApproval{Value: "2", OldValue: "1"}, true},
		{"malformed defaults to zero, still unchanged", EventApproval{Value: "", OldValue: "0"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.a.Changed())
		})
	}
}

func TestEventApprovalIntValue(t *testing.T) {
	// Gerrit sends the leading sign on the wire ("+2", "-1"); strconv.Atoi
	// accepts that directly.
	a := EventApproval{Value: "+2", OldValue: "-1"}
	assert.Equal(t, 2, a.IntValue())
	assert.Equal(t, -1, a.IntOldValue())

	b := EventApproval{Value: "garbage"}
	assert.Equal(t, 0, b.IntValue())
}

func TestChangeSubmittable(t *testing.T) {
	c := EventChange{SubmitRecords: []SubmitRecord{{Status: "NOT_READY"}, {Status: "OK"}}}
	assert.True(t, c.Submittable())

	c2 := EventChange{SubmitRecords: []SubmitRecord{{Status: "NOT_READY"}}}
	assert.False(t, c2.Submittable())

	var c3 EventChange
	assert.False(t, c3.Submittable())
}

func TestEventFingerprint(t *testing.T) {
	e := Event{Type: EventTypeCommentAdded, Change: EventChange{Number: 42}, PatchSet: EventPatchSet{Number: 2}}
	assert.Equal(t, "comment-added:42:2", e.Fingerprint())

	other := Event{Type: "some-new-event-type"}
	assert.Equal(t, "some-new-event-type", other.Fingerprint())
	assert.False(t, other.IsKnown())
	assert.True(t, e.IsKnown())
}
