// Package store persists the account pool to a versioned JSON file with
// restrictive permissions and an atomic write, grounded on the file-based
// account storage pattern used elsewhere in the retrieved pack (the
// teacher itself persists accounts to Redis; this module's persisted state
// is a single local file per spec.md section 4.1).
package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/antigravity-pool/accountpool/internal/account"
	"github.com/antigravity-pool/accountpool/internal/utils"
)

// Store loads and saves the account pool's on-disk representation.
type Store struct {
	clock account.Clock
}

// New creates a Store. clock may be nil to use the system clock.
func New(clock account.Clock) *Store {
	if clock == nil {
		clock = account.SystemClock{}
	}
	return &Store{clock: clock}
}

// Load reads path and returns the stored accounts, or nil if the file is
// missing, malformed, has a non-array accounts field, or an unsupported
// version. No error escapes for any of those cases — absence and corruption
// are indistinguishable, matching section 4.1.
func (s *Store) Load(path string) *account.AccountStorage {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var storage account.AccountStorage
	if err := json.Unmarshal(data, &storage); err != nil {
		utils.Warn("account store: failed to parse %s: %v", path, err)
		return nil
	}

	if storage.Version != account.StorageVersion {
		return nil
	}

	if storage.Accounts == nil {
		storage.Accounts = []*account.Account{}
	}

	if storage.ActiveIndex < 0 || storage.ActiveIndex >= len(storage.Accounts) {
		storage.ActiveIndex = 0
	}

	now := s.clock.NowMs()
	for _, acc := range storage.Accounts {
		acc.PruneExpiredRateLimits(now)
	}

	return &storage
}

// Save writes storage to path atomically: a temp file in the same
// directory, fsync, chmod 0600, then rename. The parent directory is
// created with mode 0700 if missing. A crash mid-write leaves either the
// old or the new content in place, never a partial file.
func (s *Store) Save(path string, storage *account.AccountStorage) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	storage.Version = account.StorageVersion
	if storage.Accounts == nil {
		storage.Accounts = []*account.Account{}
	}

	now := s.clock.NowMs()
	for _, acc := range storage.Accounts {
		acc.PruneExpiredRateLimits(now)
	}

	data, err := json.MarshalIndent(storage, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tempFile, err := os.CreateTemp(dir, ".accounts-*.tmp")
	if err != nil {
		return err
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tempPath, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		return err
	}

	success = true
	return nil
}

// legacyCredential is the shape of the single-credential seed file:
// {"google-antigravity": {refresh, projectId, access, expires}}.
type legacyCredential struct {
	Refresh   string `json:"refresh"`
	ProjectID string `json:"projectId"`
	Access    string `json:"access"`
	Expires   int64  `json:"expires"`
}

// LegacyProviderKey is the provider key used by the legacy single-credential
// seed file for this core.
const LegacyProviderKey = "google-antigravity"

// LoadLegacy reads the legacy single-credential seed file and returns a
// single Account built from it, or nil if the file is absent, malformed, or
// has no entry for LegacyProviderKey. It is used only as a one-shot import
// seed and never written by the store.
func (s *Store) LoadLegacy(path string) *account.Account {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var raw map[string]legacyCredential
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	cred, ok := raw[LegacyProviderKey]
	if !ok || cred.Refresh == "" {
		return nil
	}

	now := s.clock.NowMs()
	return &account.Account{
		RefreshToken: cred.Refresh,
		ProjectID:    cred.ProjectID,
		Access:       cred.Access,
		Expires:      cred.Expires,
		AddedAt:      now,
		LastUsed:     0,
	}
}
