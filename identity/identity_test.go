package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateGeneratesFreshZID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voiz_cache")

	s := NewStore(path)
	z1, err := s.LoadOrCreate()
	require.NoError(t, err)
	require.NotEqual(t, ZID{}, z1)

	s2 := NewStore(path)
	z2, err := s2.LoadOrCreate()
	require.NoError(t, err)
	require.Equal(t, z1, z2, "second load must return the persisted ZID, not a new one")
}

func TestLoadOrCreateRegeneratesOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voiz_cache")

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	s := NewStore(path)
	z, err := s.LoadOrCreate()
	require.NoError(t, err)
	require.NotEqual(t, ZID{}, z)
}
