package broker_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-pool/accountpool/internal/account"
	"github.com/antigravity-pool/accountpool/internal/account/broker"
	"github.com/antigravity-pool/accountpool/internal/account/pool"
	"github.com/antigravity-pool/accountpool/internal/account/refresh"
	"github.com/antigravity-pool/accountpool/internal/account/store"
)

type fakeClock struct{ nowMs int64 }

func (f *fakeClock) NowMs() int64 { return f.nowMs }

// fakeExchanger succeeds only for refresh tokens in okFor.
type fakeExchanger struct {
	okFor map[string]*refresh.Result
}

func (f fakeExchanger) Exchange(ctx context.Context, refreshToken string) (*refresh.Result, error) {
	if r, ok := f.okFor[refreshToken]; ok {
		return r, nil
	}
	return nil, assertFail{}
}

type assertFail struct{}

func (assertFail) Error() string { return "refresh not configured to succeed" }

func newBroker(t *testing.T, clock *fakeClock, accounts []*account.Account, exchanger refresh.TokenExchanger) (*broker.Broker, string) {
	t.Helper()
	dir := t.TempDir()
	statePath := filepath.Join(dir, "accounts.json")
	legacyPath := filepath.Join(dir, "credentials.json")

	p := pool.New(pool.WithClock(clock), pool.WithStored(&account.AccountStorage{Accounts: accounts}))
	s := store.New(clock)
	r := refresh.New(exchanger)
	b := broker.New(p, s, r, clock, statePath, legacyPath)
	return b, statePath
}

func TestBrokerFallbackOnRefreshFailure(t *testing.T) {
	clock := &fakeClock{nowMs: 1000}

	a := &account.Account{Email: "a", RefreshToken: "rt-a", ProjectID: "P_A", Expires: 0}
	b := &account.Account{Email: "b", RefreshToken: "rt-b", ProjectID: "P_B", Access: "tokB", Expires: 9_999_999_999_999}

	exchanger := fakeExchanger{okFor: map[string]*refresh.Result{
		"rt-b": {Access: "tokB", Expires: 9_999_999_999_999},
	}}

	br, _ := newBroker(t, clock, []*account.Account{a, b}, exchanger)

	sel, err := br.GetCredentialForModel(context.Background(), "claude-sonnet-4-5")
	require.NoError(t, err)
	require.NotNil(t, sel)
	assert.Equal(t, "tokB", sel.Credential.Access)
	assert.Equal(t, "P_B", sel.Credential.ProjectID)
}

func TestBrokerAllRateLimitedRaises(t *testing.T) {
	clock := &fakeClock{nowMs: 0}
	a := &account.Account{
		Email: "a", RefreshToken: "rt-a", ProjectID: "P_A", Access: "tokA", Expires: 9_999_999_999_999,
		RateLimitResetTimes: map[account.ModelFamily]int64{account.FamilyGeminiPro: 30000},
	}
	b := &account.Account{
		Email: "b", RefreshToken: "rt-b", ProjectID: "P_B", Access: "tokB", Expires: 9_999_999_999_999,
		RateLimitResetTimes: map[account.ModelFamily]int64{account.FamilyGeminiPro: 30000},
	}

	br, _ := newBroker(t, clock, []*account.Account{a, b}, fakeExchanger{})

	clock.nowMs = 1000

	_, err := br.GetCredentialForModel(context.Background(), "gemini-2.5-pro")
	require.Error(t, err)

	rlErr, ok := err.(broker.RateLimitedAllError)
	require.True(t, ok, "expected RateLimitedAllError, got %T: %v", err, err)
	assert.InDelta(t, 29000, rlErr.RetryAfterMs, 50)
}
