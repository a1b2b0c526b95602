package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/levenlabs/gerrit-chat-bridge/gerritssh"
)

func TestIdentityIsHuman(t *testing.T) {
	id := NewIdentity([]string{"ci-bot", "jenkins"})

	assert.True(t, id.IsHuman(gerritssh.EventAccount{Username: "alice"}))
	assert.False(t, id.IsHuman(gerritssh.EventAccount{Username: "ci-bot"}))
	// a missing username is always treated as a bot, since every human
	// account has one.
	assert.False(t, id.IsHuman(gerritssh.EventAccount{Email: "no-username@example.com"}))
}

func TestIsOwnerReply(t *testing.T) {
	e := gerritssh.Event{
		Author: gerritssh.EventAccount{Email: "alice@example.com"},
		Change: gerritssh.EventChange{Owner: gerritssh.EventAccount{Email: "alice@example.com"}},
	}
	assert.True(t, IsOwnerReply(e))

	e.Author.Email = "bob@example.com"
	assert.False(t, IsOwnerReply(e))

	e.Author.Email = ""
	e.Change.Owner.Email = ""
	assert.False(t, IsOwnerReply(e))
}
