package account_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/antigravity-pool/accountpool/internal/account"
)

func TestAccessStateRoundTrip(t *testing.T) {
	a := &account.Account{}
	assert.Equal(t, account.AccessUnknown, a.AccessState())

	a.SetAccessState(account.AccessValid)
	assert.Equal(t, account.AccessValid, a.AccessState())
	assert.True(t, *a.HasAccess)

	a.SetAccessState(account.AccessInvalid)
	assert.Equal(t, account.AccessInvalid, a.AccessState())
	assert.False(t, *a.HasAccess)

	a.SetAccessState(account.AccessUnknown)
	assert.Nil(t, a.HasAccess)
}

func TestIsRateLimitedForRespectsExpiry(t *testing.T) {
	a := &account.Account{RateLimitResetTimes: map[account.ModelFamily]int64{
		account.FamilyClaude: 5000,
	}}
	assert.True(t, a.IsRateLimitedFor(account.FamilyClaude, 4000))
	assert.False(t, a.IsRateLimitedFor(account.FamilyClaude, 5000))
	assert.False(t, a.IsRateLimitedFor(account.FamilyGeminiPro, 4000))
}

func TestPruneExpiredRateLimits(t *testing.T) {
	a := &account.Account{RateLimitResetTimes: map[account.ModelFamily]int64{
		account.FamilyClaude:    1000,
		account.FamilyGeminiPro: 9999,
	}}
	a.PruneExpiredRateLimits(5000)
	_, claudeStillThere := a.RateLimitResetTimes[account.FamilyClaude]
	_, proStillThere := a.RateLimitResetTimes[account.FamilyGeminiPro]
	assert.False(t, claudeStillThere)
	assert.True(t, proStillThere)
}

func TestIsStale(t *testing.T) {
	a := &account.Account{}
	assert.True(t, a.IsStale(1000))

	a.Access = "tok"
	assert.False(t, a.IsStale(1000))

	a.Expires = 2000
	assert.False(t, a.IsStale(1999))
	assert.True(t, a.IsStale(2000))
}

func TestGetModelFamily(t *testing.T) {
	assert.Equal(t, account.FamilyClaude, account.GetModelFamily("claude-sonnet-4-5"))
	assert.Equal(t, account.FamilyGeminiFlash, account.GetModelFamily("gemini-2.5-flash"))
	assert.Equal(t, account.FamilyGeminiPro, account.GetModelFamily("gemini-2.5-pro"))
}
