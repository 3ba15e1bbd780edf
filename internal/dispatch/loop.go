// Package dispatch wraps a single logical request in a bounded retry loop,
// arming an activity watchdog and a wall-clock timeout per attempt, per
// spec.md section 4.5.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/antigravity-pool/accountpool/internal/account"
	"github.com/antigravity-pool/accountpool/internal/account/broker"
	"github.com/antigravity-pool/accountpool/internal/config"
	"github.com/antigravity-pool/accountpool/internal/utils"
)

// SilentRateLimitCooldownMs is the family cooldown applied when the
// watchdog detects a stall.
const SilentRateLimitCooldownMs = 120_000

// ExplicitRateLimitCooldownMs is the family cooldown applied when the
// attempt callback's error matches the rate-limit heuristic.
const ExplicitRateLimitCooldownMs = 120_000

// Attempt is the caller-supplied closure performing the actual request. It
// receives a context that is cancelled on stall or timeout, and a Watchdog
// it must Touch() on every observable stream event (token, tool call, tool
// result).
type Attempt func(ctx context.Context, watchdog *Watchdog, cred *account.Credential) error

// CredentialSource is the subset of broker.Broker the loop depends on, so
// tests can supply a fake.
type CredentialSource interface {
	GetCredentialForModel(ctx context.Context, modelID string) (*broker.Selection, error)
	MarkRateLimited(acc *account.Account, durationMs int64, family account.ModelFamily)
}

// Loop wraps a request in the retry/watchdog/timeout machinery.
type Loop struct {
	source      CredentialSource
	wallTimeout time.Duration
}

// New constructs a Loop. wallTimeout of 0 disables the wall-clock timer.
func New(source CredentialSource, wallTimeout time.Duration) *Loop {
	return &Loop{source: source, wallTimeout: wallTimeout}
}

// Run executes attempt under the retry policy for provider/modelID:
// max attempts per dispatch.MaxAttempts(provider), retrying only on
// ActivityTimeoutError with attempts remaining.
func (l *Loop) Run(ctx context.Context, provider, modelID string, attempt Attempt) error {
	maxAttempts := MaxAttempts(provider)

	var lastErr error
	for n := 0; n < maxAttempts; n++ {
		correlationID := uuid.NewString()

		selection, err := l.source.GetCredentialForModel(ctx, modelID)
		if err != nil {
			return err
		}
		if selection == nil {
			if lastErr != nil {
				return lastErr
			}
			return NoCredentialError{}
		}

		utils.Debug("[dispatch %s] attempt %d/%d using account %s", correlationID, n+1, maxAttempts, labelOf(selection.Account))

		err = l.runAttempt(ctx, selection, attempt)
		if err == nil {
			return nil
		}

		lastErr = err

		var activityTimeout ActivityTimeoutError
		if isActivityTimeout(err, &activityTimeout) && n+1 < maxAttempts {
			utils.Warn("[dispatch %s] activity timeout on account %s, retrying", correlationID, labelOf(selection.Account))
			continue
		}

		return err
	}

	return lastErr
}

func isActivityTimeout(err error, out *ActivityTimeoutError) bool {
	if at, ok := err.(ActivityTimeoutError); ok {
		*out = at
		return true
	}
	return false
}

func labelOf(acc *account.Account) string {
	if acc == nil {
		return "<none>"
	}
	if acc.Email != "" {
		return acc.Email
	}
	return "<unnamed>"
}

// runAttempt arms the watchdog and wall-clock timer, joined with errgroup so
// both are always stopped together regardless of which fires first.
func (l *Loop) runAttempt(ctx context.Context, selection *broker.Selection, attempt Attempt) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchdog := NewWatchdog(cancel)
	stalled := false

	group, groupCtx := errgroup.WithContext(attemptCtx)
	stop := make(chan struct{})

	group.Go(func() error {
		watchdog.Run(stop, func() { stalled = true })
		return nil
	})

	if l.wallTimeout > 0 {
		timer := time.NewTimer(l.wallTimeout)
		group.Go(func() error {
			select {
			case <-timer.C:
				watchdog.Cancel()
			case <-stop:
				timer.Stop()
			case <-groupCtx.Done():
				timer.Stop()
			}
			return nil
		})
	}

	err := attempt(attemptCtx, watchdog, selection.Credential)
	close(stop)
	_ = group.Wait()

	if stalled {
		l.source.MarkRateLimited(selection.Account, SilentRateLimitCooldownMs, selection.Family)
		return ActivityTimeoutError{Account: labelOf(selection.Account), Family: string(selection.Family)}
	}

	if err != nil {
		if config.MatchesRateLimitHeuristic(err.Error()) {
			l.source.MarkRateLimited(selection.Account, ExplicitRateLimitCooldownMs, selection.Family)
			return ExplicitRateLimitError{Account: labelOf(selection.Account), Family: string(selection.Family), Cause: err}
		}
		return err
	}

	return nil
}
