package secrets

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The tests force the encrypted-file fallback so they do not depend on a
// keyring backend being present on the build host.
func newFileStore(t *testing.T) *Store {
	t.Setenv("GOLDPIPE_NO_KEYRING", "1")
	t.Setenv("GOLDPIPE_MASTER_KEY", "unit-test-master-key")
	return NewStore(t.TempDir())
}

func TestStoreRoundTrip(t *testing.T) {
	store := newFileStore(t)

	require.NoError(t, store.Set("warehouse_password", "reader_pw"))

	value, err := store.Get("warehouse_password")
	require.NoError(t, err)
	assert.Equal(t, "reader_pw", value)
}

func TestStoreOverwrite(t *testing.T) {
	store := newFileStore(t)

	require.NoError(t, store.Set("metabase_password", "first"))
	require.NoError(t, store.Set("metabase_password", "second"))

	value, err := store.Get("metabase_password")
	require.NoError(t, err)
	assert.Equal(t, "second", value)
}

func TestStoreMissingSecret(t *testing.T) {
	store := newFileStore(t)

	_, err := store.Get("never_stored")
	assert.Error(t, err)
}

func TestStoreDelete(t *testing.T) {
	store := newFileStore(t)

	require.NoError(t, store.Set("temp", "x"))
	require.NoError(t, store.Delete("temp"))

	_, err := store.Get("temp")
	assert.Error(t, err)

	// deleting again is not an error
	assert.NoError(t, store.Delete("temp"))
}

func TestEncryptedFilePermissions(t *testing.T) {
	t.Setenv("GOLDPIPE_NO_KEYRING", "1")
	t.Setenv("GOLDPIPE_MASTER_KEY", "unit-test-master-key")
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Set("perm_check", "secret"))

	info, err := os.Stat(store.secretPath("perm_check"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
