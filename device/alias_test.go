package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAliasStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewAliasStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set("emulator-5554", "work phone"))
	assert.Equal(t, "work phone", s.Get("emulator-5554"))
	assert.Empty(t, s.Get("unknown"))

	// Aliases survive a reload.
	reloaded, err := NewAliasStore(dir)
	require.NoError(t, err)
	assert.Equal(t, "work phone", reloaded.Get("emulator-5554"))
}

func TestAliasStoreEmptyAliasRemoves(t *testing.T) {
	s, err := NewAliasStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Set("serial-1", "name"))
	require.NoError(t, s.Set("serial-1", ""))
	assert.Empty(t, s.Get("serial-1"))
	assert.Empty(t, s.All())
}

func TestAliasStoreDelete(t *testing.T) {
	s, err := NewAliasStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Set("a", "one"))
	require.NoError(t, s.Set("b", "two"))
	require.NoError(t, s.Delete("a"))
	require.NoError(t, s.Delete("a")) // deleting twice is fine

	all := s.All()
	assert.Len(t, all, 1)
	assert.Equal(t, "two", all["b"])
}

func TestAliasStoreAllIsCopy(t *testing.T) {
	s, err := NewAliasStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Set("a", "one"))

	all := s.All()
	all["a"] = "mutated"
	assert.Equal(t, "one", s.Get("a"))
}
