package subscriber

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryByEmailIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry(Set{Subscribers: []Subscriber{
		{ChatID: "U1", Email: "alice@example.com", Enabled: true},
	}})

	s, ok := reg.ByEmail("Alice@Example.COM")
	assert.True(t, ok)
	assert.Equal(t, "U1", s.ChatID)

	_, ok = reg.ByEmail("bob@example.com")
	assert.False(t, ok)
}

func TestRegistryGetOrCreate(t *testing.T) {
	reg := NewRegistry(Set{})

	s, created := reg.GetOrCreate("U1", "alice@example.com")
	assert.True(t, created)
	assert.False(t, s.Enabled)

	s2, created2 := reg.GetOrCreate("U1", "alice@example.com")
	assert.False(t, created2)
	assert.Equal(t, s.CreatedAt, s2.CreatedAt)
}

func TestRegistryMutateTriggersOnChange(t *testing.T) {
	reg := NewRegistry(Set{})
	var notified int
	reg.OnChange(func() { notified++ })

	reg.Mutate("U1", "alice@example.com", func(s *Subscriber) {
		s.Enabled = true
	})

	assert.Equal(t, 1, notified)
	s, ok := reg.ByEmail("alice@example.com")
	assert.True(t, ok)
	assert.True(t, s.Enabled)
}

func TestRegistryCountEnabledExcludesRequester(t *testing.T) {
	reg := NewRegistry(Set{Subscribers: []Subscriber{
		{ChatID: "U1", Email: "a@example.com", Enabled: true},
		{ChatID: "U2", Email: "b@example.com", Enabled: true},
		{ChatID: "U3", Email: "c@example.com", Enabled: false},
	}})

	assert.Equal(t, 1, reg.CountEnabled("U1"))
	assert.Equal(t, 2, reg.CountEnabled("nonexistent"))
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	reg := NewRegistry(Set{Subscribers: []Subscriber{
		{ChatID: "U1", Email: "a@example.com", Enabled: true},
	}})

	snap := reg.Snapshot()
	snap.Subscribers[0].Enabled = false

	s, _ := reg.ByEmail("a@example.com")
	assert.True(t, s.Enabled, "mutating a snapshot must not affect the live registry")
}
