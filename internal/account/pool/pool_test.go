package pool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-pool/accountpool/internal/account"
	"github.com/antigravity-pool/accountpool/internal/account/pool"
)

type fakeClock struct{ nowMs int64 }

func (f *fakeClock) NowMs() int64 { return f.nowMs }

func valid(v bool) *bool { return &v }

func TestTierUpgradeUnderStickySelection(t *testing.T) {
	clock := &fakeClock{nowMs: 1000}
	a := &account.Account{Email: "a", Tier: account.TierFree}
	b := &account.Account{Email: "b", Tier: account.TierPaid}

	p := pool.New(pool.WithClock(clock), pool.WithStored(&account.AccountStorage{
		Accounts:    []*account.Account{a, b},
		ActiveIndex: 0,
	}))

	got := p.SelectAccountForFamily(account.FamilyGeminiPro, pool.Sticky)
	require.NotNil(t, got)
	assert.Same(t, b, got)
}

func TestFamilyIsolation(t *testing.T) {
	clock := &fakeClock{nowMs: 1000}
	a := &account.Account{Email: "a"}

	p := pool.New(pool.WithClock(clock), pool.WithStored(&account.AccountStorage{
		Accounts:    []*account.Account{a},
		ActiveIndex: 0,
	}))

	p.MarkRateLimited(a, 60000, account.FamilyClaude)
	clock.nowMs = 1001

	gotFlash := p.SelectAccountForFamily(account.FamilyGeminiFlash, pool.Sticky)
	assert.Same(t, a, gotFlash)

	gotClaude := p.SelectAccountForFamily(account.FamilyClaude, pool.Sticky)
	assert.Nil(t, gotClaude)

	assert.Equal(t, int64(60000-1), p.MinWaitTimeForFamily(account.FamilyClaude))
}

func TestRoundRobinFairnessAmongPaidConfirmed(t *testing.T) {
	clock := &fakeClock{nowMs: 0}
	p1 := &account.Account{Email: "p1", Tier: account.TierPaid, HasAccess: valid(true)}
	p2 := &account.Account{Email: "p2", Tier: account.TierPaid, HasAccess: valid(true)}
	f := &account.Account{Email: "f", Tier: account.TierFree, HasAccess: valid(true)}

	p := pool.New(pool.WithClock(clock), pool.WithStored(&account.AccountStorage{
		Accounts:    []*account.Account{p1, p2, f},
		ActiveIndex: 0,
	}))

	first := p.SelectAccountForFamily(account.FamilyClaude, pool.RoundRobin)
	second := p.SelectAccountForFamily(account.FamilyClaude, pool.RoundRobin)
	third := p.SelectAccountForFamily(account.FamilyClaude, pool.RoundRobin)

	assert.Same(t, p1, first)
	assert.Same(t, p2, second)
	assert.Same(t, p1, third)
}

func TestAddAccountCap(t *testing.T) {
	p := pool.New()
	for i := 0; i < 10; i++ {
		ok := p.AddAccount(&account.Account{RefreshToken: "t"})
		require.True(t, ok)
	}
	ok := p.AddAccount(&account.Account{RefreshToken: "overflow"})
	assert.False(t, ok)
	assert.Equal(t, 10, p.Len())
}

func TestRemoveAccountReindexesDensely(t *testing.T) {
	a := &account.Account{Email: "a"}
	b := &account.Account{Email: "b"}
	c := &account.Account{Email: "c"}
	p := pool.New(pool.WithStored(&account.AccountStorage{Accounts: []*account.Account{a, b, c}}))

	require.True(t, p.RemoveAccount(1))

	remaining := p.Accounts()
	require.Len(t, remaining, 2)
	assert.Same(t, a, remaining[0])
	assert.Same(t, c, remaining[1])
}

func TestMinWaitTimeForFamilyNoEntriesIsZero(t *testing.T) {
	p := pool.New(pool.WithStored(&account.AccountStorage{
		Accounts: []*account.Account{{Email: "a"}},
	}))
	assert.Equal(t, int64(0), p.MinWaitTimeForFamily(account.FamilyClaude))
}

func TestFindByRefreshToken(t *testing.T) {
	a := &account.Account{RefreshToken: "tok-a"}
	b := &account.Account{RefreshToken: "tok-b"}
	p := pool.New(pool.WithStored(&account.AccountStorage{Accounts: []*account.Account{a, b}}))

	assert.Same(t, b, p.FindByRefreshToken("tok-b"))
	assert.Nil(t, p.FindByRefreshToken("missing"))
}
