package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-pool/accountpool/internal/account"
	"github.com/antigravity-pool/accountpool/internal/account/broker"
	"github.com/antigravity-pool/accountpool/internal/dispatch"
)

// fakeSource hands out a fixed sequence of accounts (X then Y), and records
// every MarkRateLimited call.
type fakeSource struct {
	accounts []*account.Account
	calls    int
	marked   []markCall
}

type markCall struct {
	acc        *account.Account
	durationMs int64
	family     account.ModelFamily
}

func (f *fakeSource) GetCredentialForModel(ctx context.Context, modelID string) (*broker.Selection, error) {
	if f.calls >= len(f.accounts) {
		return nil, nil
	}
	acc := f.accounts[f.calls]
	f.calls++
	return &broker.Selection{
		Credential: &account.Credential{Access: "tok", ProjectID: "p"},
		Account:    acc,
		Family:     account.FamilyClaude,
	}, nil
}

func (f *fakeSource) MarkRateLimited(acc *account.Account, durationMs int64, family account.ModelFamily) {
	f.marked = append(f.marked, markCall{acc, durationMs, family})
}

func TestActivityTimeoutTriggersRetryOntoFreshAccount(t *testing.T) {
	x := &account.Account{Email: "x"}
	y := &account.Account{Email: "y"}
	source := &fakeSource{accounts: []*account.Account{x, y}}

	// Shrink the watchdog timing for the test instead of sleeping real 30s.
	origThreshold := dispatch.SilenceThreshold
	origPoll := dispatch.PollInterval
	dispatch.SilenceThreshold = 30 * time.Millisecond
	dispatch.PollInterval = 5 * time.Millisecond
	defer func() {
		dispatch.SilenceThreshold = origThreshold
		dispatch.PollInterval = origPoll
	}()

	loop := dispatch.New(source, 0)

	attemptNum := 0
	err := loop.Run(context.Background(), "google-antigravity", "claude-sonnet-4-5", func(ctx context.Context, wd *dispatch.Watchdog, cred *account.Credential) error {
		attemptNum++
		if attemptNum == 1 {
			wd.Touch()
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attemptNum)
	require.Len(t, source.marked, 1)
	assert.Same(t, x, source.marked[0].acc)
	assert.Equal(t, int64(dispatch.SilentRateLimitCooldownMs), source.marked[0].durationMs)
}

func TestExplicitRateLimitDoesNotRetry(t *testing.T) {
	x := &account.Account{Email: "x"}
	source := &fakeSource{accounts: []*account.Account{x, x, x}}

	loop := dispatch.New(source, 0)

	err := loop.Run(context.Background(), "google-antigravity", "claude-sonnet-4-5", func(ctx context.Context, wd *dispatch.Watchdog, cred *account.Credential) error {
		wd.Touch()
		return errors.New("429 Too Many Requests")
	})

	require.Error(t, err)
	assert.Equal(t, 1, source.calls)
	require.Len(t, source.marked, 1)
	assert.Equal(t, int64(dispatch.ExplicitRateLimitCooldownMs), source.marked[0].durationMs)
}
