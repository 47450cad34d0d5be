package presence

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisconnectKeepsSessionPointer(t *testing.T) {
	m := New()
	m.Connect("ann", "c1")
	require.NoError(t, m.Bind("ann", "s1"))

	require.True(t, m.Disconnect("ann", "c1"))
	require.False(t, m.Online("ann"))
	sid, ok := m.SessionOf("ann")
	require.True(t, ok)
	require.Equal(t, "s1", sid)
}

func TestStaleConnectionCannotLapseNewOne(t *testing.T) {
	m := New()
	m.Connect("ann", "c1")
	require.Equal(t, "c1", m.Connect("ann", "c2"))
	require.False(t, m.Disconnect("ann", "c1"))
	require.True(t, m.Online("ann"))
}

func TestBindIsExclusive(t *testing.T) {
	m := New()
	require.NoError(t, m.Bind("ann", "s1"))
	require.NoError(t, m.Bind("ann", "s1"))
	require.ErrorIs(t, m.Bind("ann", "s2"), ErrBoundElsewhere)

	m.Unbind("ann", "s2")
	sid, _ := m.SessionOf("ann")
	require.Equal(t, "s1", sid)

	m.Unbind("ann", "s1")
	_, ok := m.SessionOf("ann")
	require.False(t, ok)
}

func TestEvictClearsEverySeatOfASession(t *testing.T) {
	m := New()
	require.NoError(t, m.Bind("ann", "s1"))
	require.NoError(t, m.Bind("bob", "s1"))
	require.NoError(t, m.Bind("cat", "s2"))
	m.Connect("bob", "c9")

	users := m.Evict("s1")
	sort.Strings(users)
	require.Equal(t, []string{"ann", "bob"}, users)

	_, ok := m.SessionOf("bob")
	require.False(t, ok)
	require.True(t, m.Online("bob"))
	sid, _ := m.SessionOf("cat")
	require.Equal(t, "s2", sid)
}
