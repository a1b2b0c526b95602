package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levenlabs/gerrit-chat-bridge/subscriber"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	set := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Equal(t, 1, set.Version)
	assert.Empty(t, set.Subscribers)
}

func TestLoadCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	set := Load(path)
	assert.Equal(t, 1, set.Version)
	assert.Empty(t, set.Subscribers)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	set := subscriber.Set{
		Version: 1,
		Subscribers: []subscriber.Subscriber{
			{ChatID: "U1", Email: "alice@example.com", Enabled: true, Flags: subscriber.Flags{subscriber.FlagReviewApprovals: true}},
		},
	}
	require.NoError(t, Save(path, set))

	loaded := Load(path)
	require.Len(t, loaded.Subscribers, 1)
	assert.Equal(t, "alice@example.com", loaded.Subscribers[0].Email)
	assert.True(t, loaded.Subscribers[0].Enabled)

	// no leftover temp files
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSavePreservesUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	raw := `{"version":1,"subscribers":[{"chat_id":"U1","email":"a@b.com","enabled":true,"flags":{},"future_field":"kept"}]}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	set := Load(path)
	require.NoError(t, Save(path, set))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "future_field")
}
