package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "nope", "prefs.msgpack"))
	require.NoError(t, err)

	_, ok := store.Get(KeyName)
	assert.False(t, ok)
}

func TestSetPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.msgpack")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(KeyName, "Caleb"))
	require.NoError(t, store.Set(KeyDevice, "2"))
	require.NoError(t, store.Set(KeyName, "Caleb M"))

	reopened, err := Open(path)
	require.NoError(t, err)

	name, ok := reopened.Get(KeyName)
	require.True(t, ok)
	assert.Equal(t, "Caleb M", name)

	device, ok := reopened.Get(KeyDevice)
	require.True(t, ok)
	assert.Equal(t, "2", device)
}

func TestOpenCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.msgpack")
	require.NoError(t, os.WriteFile(path, []byte("\xc1not msgpack"), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}
