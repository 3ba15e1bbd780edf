// Package broker is the public entry point for obtaining a live credential
// for a given model: it selects an account from the pool, ensures a fresh
// access token, persists the result, and handles one cascading fallback if
// the first refresh fails. Grounded on the teacher's Manager.SelectAccount
// delegation pattern (go-backend/internal/account/manager.go), adapted to
// the file-backed store and single-mutex pool.
package broker

import (
	"context"
	"fmt"

	"github.com/antigravity-pool/accountpool/internal/account"
	"github.com/antigravity-pool/accountpool/internal/account/pool"
	"github.com/antigravity-pool/accountpool/internal/account/refresh"
	"github.com/antigravity-pool/accountpool/internal/account/store"
	"github.com/antigravity-pool/accountpool/internal/utils"
)

// RefreshFailureCooldownMs is the cooldown applied to an account whose
// token refresh failed, to avoid immediately re-selecting it (section 4.4).
const RefreshFailureCooldownMs = 60_000

// NoAccountsError is raised when the pool is entirely empty.
type NoAccountsError struct{}

func (NoAccountsError) Error() string { return "no accounts configured" }

// RateLimitedAllError is raised when every account is rate-limited for a
// family; RetryAfterMs carries the minimum wait.
type RateLimitedAllError struct {
	Family      account.ModelFamily
	RetryAfterMs int64
}

func (e RateLimitedAllError) Error() string {
	return fmt.Sprintf("all accounts rate-limited for %s, retry after %dms", e.Family, e.RetryAfterMs)
}

// RefreshFailedError is raised when a token refresh (and its one fallback)
// both fail to produce a usable access token.
type RefreshFailedError struct {
	Account string // email or index, for user-facing messages
}

func (e RefreshFailedError) Error() string {
	return fmt.Sprintf("token refresh failed for account %s; re-authentication required", e.Account)
}

// Broker is the credential broker described in spec.md section 4.4.
type Broker struct {
	pool      *pool.Pool
	store     *store.Store
	refresher *refresh.Refresher
	clock     account.Clock

	statePath  string
	legacyPath string

	seeded bool
}

// New constructs a Broker. p must already be hydrated (via pool options);
// statePath/legacyPath are used for persistence and one-shot legacy import.
func New(p *pool.Pool, s *store.Store, r *refresh.Refresher, clock account.Clock, statePath, legacyPath string) *Broker {
	if clock == nil {
		clock = account.SystemClock{}
	}
	return &Broker{
		pool:       p,
		store:      s,
		refresher:  r,
		clock:      clock,
		statePath:  statePath,
		legacyPath: legacyPath,
	}
}

// seedFromLegacyIfEmpty imports the legacy single-credential file exactly
// once, only if the pool is otherwise empty.
func (b *Broker) seedFromLegacyIfEmpty() {
	if b.seeded {
		return
	}
	b.seeded = true
	if b.pool.Len() > 0 {
		return
	}
	legacy := b.store.LoadLegacy(b.legacyPath)
	if legacy == nil {
		return
	}
	if b.pool.AddAccount(legacy) {
		utils.Info("broker: seeded one account from legacy credential file")
	}
}

func accountLabel(acc *account.Account) string {
	if acc.Email != "" {
		return acc.Email
	}
	return "<unnamed>"
}

// Selection is a resolved credential plus the account and family it was
// drawn from, so a caller (the dispatch loop) can mark that exact account
// rate-limited on a later failure without re-deriving the selection.
type Selection struct {
	Credential *account.Credential
	Account    *account.Account
	Family     account.ModelFamily
}

// GetCredentialForModel selects an account for modelID's family, ensures a
// live access token, persists the pool, and returns the resolved selection.
func (b *Broker) GetCredentialForModel(ctx context.Context, modelID string) (*Selection, error) {
	b.seedFromLegacyIfEmpty()

	if b.pool.Len() == 0 {
		return nil, NoAccountsError{}
	}

	family := account.GetModelFamily(modelID)

	mode := pool.Sticky
	if b.pool.Len() >= 2 {
		mode = pool.RoundRobin
	}

	acc := b.pool.SelectAccountForFamily(family, mode)
	if acc == nil {
		if wait := b.pool.MinWaitTimeForFamily(family); wait > 0 {
			return nil, RateLimitedAllError{Family: family, RetryAfterMs: wait}
		}
		return nil, nil
	}

	if acc.ProjectID == "" {
		return nil, nil
	}

	now := b.clock.NowMs()
	if !acc.IsStale(now) {
		b.persist()
		return &Selection{Credential: credentialOf(acc), Account: acc, Family: family}, nil
	}

	result := b.refresher.Refresh(ctx, acc.RefreshToken, acc.ProjectID)
	if result != nil {
		b.applyRefresh(acc, result)
		b.persist()
		return &Selection{Credential: credentialOf(acc), Account: acc, Family: family}, nil
	}

	// Refresh failed: cool this account down and attempt exactly one fallback.
	b.pool.MarkRateLimited(acc, RefreshFailureCooldownMs, family)

	fallback := b.pool.SelectAccountForFamily(family, mode)
	if fallback != nil && fallback != acc && fallback.ProjectID != "" {
		fallbackResult := b.refresher.Refresh(ctx, fallback.RefreshToken, fallback.ProjectID)
		if fallbackResult != nil {
			b.applyRefresh(fallback, fallbackResult)
			b.persist()
			return &Selection{Credential: credentialOf(fallback), Account: fallback, Family: family}, nil
		}
	}

	return nil, RefreshFailedError{Account: accountLabel(acc)}
}

func credentialOf(acc *account.Account) *account.Credential {
	return &account.Credential{
		Access:    acc.Access,
		Refresh:   acc.RefreshToken,
		ProjectID: acc.ProjectID,
		Expires:   acc.Expires,
	}
}

// MarkRateLimited delegates to the underlying pool, used by the dispatch
// loop to mark the account from a Selection rate-limited after a failed
// attempt.
func (b *Broker) MarkRateLimited(acc *account.Account, durationMs int64, family account.ModelFamily) {
	b.pool.MarkRateLimited(acc, durationMs, family)
}

func (b *Broker) applyRefresh(acc *account.Account, result *refresh.Result) {
	access := result.Access
	expires := result.Expires
	b.pool.UpdateAccount(acc, pool.AccountUpdate{
		Access:  &access,
		Expires: &expires,
	})
}

func (b *Broker) persist() {
	if err := b.store.Save(b.statePath, b.pool.Snapshot()); err != nil {
		utils.Error("broker: failed to persist account store: %v", err)
	}
}
