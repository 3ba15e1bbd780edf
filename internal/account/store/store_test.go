package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-pool/accountpool/internal/account"
	"github.com/antigravity-pool/accountpool/internal/account/store"
)

func TestLoadMissingFileReturnsNil(t *testing.T) {
	s := store.New(nil)
	got := s.Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Nil(t, got)
}

func TestLoadRejectsWrongVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"accounts":[],"activeIndex":0}`), 0o600))

	s := store.New(nil)
	assert.Nil(t, s.Load(path))
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")

	s := store.New(nil)
	original := &account.AccountStorage{
		Version: account.StorageVersion,
		Accounts: []*account.Account{
			{Email: "a@example.com", RefreshToken: "rt-a", Tier: account.TierPaid},
			{Email: "b@example.com", RefreshToken: "rt-b", Tier: account.TierFree},
		},
		ActiveIndex: 1,
	}

	require.NoError(t, s.Save(path, original))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded := s.Load(path)
	require.NotNil(t, loaded)
	assert.Equal(t, original.ActiveIndex, loaded.ActiveIndex)
	require.Len(t, loaded.Accounts, 2)
	assert.Equal(t, "a@example.com", loaded.Accounts[0].Email)
	assert.Equal(t, "rt-b", loaded.Accounts[1].RefreshToken)
}

func TestSaveClampsActiveIndexOnLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":2,"accounts":[{"refreshToken":"rt"}],"activeIndex":7}`), 0o600))

	s := store.New(nil)
	loaded := s.Load(path)
	require.NotNil(t, loaded)
	assert.Equal(t, 0, loaded.ActiveIndex)
}

func TestLoadLegacyCredential(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"google-antigravity":{"refresh":"rt","projectId":"p1","access":"tok","expires":123}}`), 0o600))

	s := store.New(nil)
	acc := s.LoadLegacy(path)
	require.NotNil(t, acc)
	assert.Equal(t, "rt", acc.RefreshToken)
	assert.Equal(t, "p1", acc.ProjectID)
}

func TestLoadLegacyMissingKeyReturnsNil(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"other-provider":{"refresh":"rt"}}`), 0o600))

	s := store.New(nil)
	assert.Nil(t, s.LoadLegacy(path))
}
