package securestore

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(path, "test-seed")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.db")

	store := openTestStore(t, path)
	store.Set("auth_tokens", json.RawMessage(`{"access_token":"a","refresh_token":"r"}`))
	store.Set("api_base", json.RawMessage(`"http://localhost:3000/api/v1"`))
	require.NoError(t, store.Save())
	require.NoError(t, store.Close())

	reopened, err := Open(path, "test-seed")
	require.NoError(t, err)
	defer reopened.Close()

	value, ok := reopened.Get("auth_tokens")
	require.True(t, ok)
	assert.JSONEq(t, `{"access_token":"a","refresh_token":"r"}`, string(value))

	base, ok := reopened.Get("api_base")
	require.True(t, ok)
	assert.Equal(t, `"http://localhost:3000/api/v1"`, string(base))
}

func TestDeleteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.db")
	store := openTestStore(t, path)

	store.Set("auth_tokens", json.RawMessage(`{"access_token":"a"}`))
	require.NoError(t, store.Save())

	store.Delete("auth_tokens")
	require.NoError(t, store.Save())
	_, ok := store.Get("auth_tokens")
	assert.False(t, ok)

	// Second delete of an absent key still succeeds.
	store.Delete("auth_tokens")
	require.NoError(t, store.Save())
	_, ok = store.Get("auth_tokens")
	assert.False(t, ok)
}

func TestUnsavedChangesDoNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.db")

	store := openTestStore(t, path)
	store.Set("api_base", json.RawMessage(`"http://one"`))
	require.NoError(t, store.Save())
	store.Set("api_base", json.RawMessage(`"http://two"`))
	require.NoError(t, store.Close())

	reopened, err := Open(path, "test-seed")
	require.NoError(t, err)
	defer reopened.Close()

	value, ok := reopened.Get("api_base")
	require.True(t, ok)
	assert.Equal(t, `"http://one"`, string(value))
}

func TestWrongSeedFailsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.db")

	store := openTestStore(t, path)
	store.Set("auth_tokens", json.RawMessage(`{"access_token":"a"}`))
	require.NoError(t, store.Save())
	require.NoError(t, store.Close())

	_, err := Open(path, "a-different-seed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undecryptable")
}

func TestCorruptRowFailsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.db")

	store := openTestStore(t, path)
	store.Set("auth_tokens", json.RawMessage(`{"access_token":"a"}`))
	require.NoError(t, store.Save())
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE secure_values SET value = ? WHERE key = ?`, []byte("garbage"), "auth_tokens")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path, "test-seed")
	require.Error(t, err)
}

func TestSealRoundTrip(t *testing.T) {
	key, err := deriveKey("seed-a")
	require.NoError(t, err)

	sealed, err := seal(key, []byte("top-secret-token-data"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "top-secret")

	plaintext, err := open(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "top-secret-token-data", string(plaintext))
}

func TestDerivedKeyIsStableForSameSeed(t *testing.T) {
	a, err := deriveKey("seed-a")
	require.NoError(t, err)
	b, err := deriveKey("seed-a")
	require.NoError(t, err)
	c, err := deriveKey("seed-b")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
