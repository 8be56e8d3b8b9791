package localstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")

	f, err := Open(path)
	require.NoError(t, err)
	_, ok := f.Get("rememberedEmail")
	assert.False(t, ok)

	require.NoError(t, f.Set("rememberedEmail", "gm@example.com"))
	require.NoError(t, f.Set("lockoutExpiry", "1700000300000"))

	reopened, err := Open(path)
	require.NoError(t, err)
	v, ok := reopened.Get("rememberedEmail")
	require.True(t, ok)
	assert.Equal(t, "gm@example.com", v)
	v, _ = reopened.Get("lockoutExpiry")
	assert.Equal(t, "1700000300000", v)
}

func TestFileDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	f, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, f.Delete("missing"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "deleting an absent key must not create the file")

	require.NoError(t, f.Set("k", "v"))
	require.NoError(t, f.Delete("k"))

	reopened, err := Open(path)
	require.NoError(t, err)
	_, ok := reopened.Get("k")
	assert.False(t, ok)
}

func TestFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0o600))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set("a", "1"))
	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	require.NoError(t, m.Delete("a"))
	_, ok = m.Get("a")
	assert.False(t, ok)
}
