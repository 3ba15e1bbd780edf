// Package account defines the core data model shared by the account store,
// pool, refresher, and broker: Account records, model families, tiers, and
// switch reasons.
package account

import (
	"github.com/antigravity-pool/accountpool/internal/config"
)

// ModelFamily re-exports config.ModelFamily so callers only need to import
// one package for the common case.
type ModelFamily = config.ModelFamily

const (
	FamilyClaude      = config.FamilyClaude
	FamilyGeminiFlash = config.FamilyGeminiFlash
	FamilyGeminiPro   = config.FamilyGeminiPro
)

// GetModelFamily derives a ModelFamily from a model identifier.
func GetModelFamily(modelID string) ModelFamily {
	return config.GetModelFamily(modelID)
}

// Tier is the billing level of an account.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// SwitchReason is advisory metadata recorded for observability whenever an
// account is selected or mutated.
type SwitchReason string

const (
	ReasonRateLimit   SwitchReason = "rate-limit"
	ReasonInitial     SwitchReason = "initial"
	ReasonRotation    SwitchReason = "rotation"
	ReasonInvalidCreds SwitchReason = "invalid-creds"
)

// AccessState is a tri-state replacement for a nullable "hasAccess" boolean:
// absent vs. known-false carry different meaning during selection, so a
// sum type is used instead of *bool (DESIGN NOTES).
type AccessState int

const (
	AccessUnknown AccessState = iota
	AccessValid
	AccessInvalid
)

// Account is the persisted record for a single upstream OAuth identity.
type Account struct {
	Email        string `json:"email,omitempty"`
	Tier         Tier   `json:"tier,omitempty"`
	RefreshToken string `json:"refreshToken"`
	ProjectID    string `json:"projectId,omitempty"`
	Access       string `json:"access,omitempty"`
	Expires      int64  `json:"expires,omitempty"`

	AddedAt  int64 `json:"addedAt"`
	LastUsed int64 `json:"lastUsed"`

	LastSwitchReason SwitchReason `json:"lastSwitchReason,omitempty"`

	// RateLimitResetTimes maps a model family to the epoch-ms at which its
	// rate limit lifts. Absence of a key means "no limit known."
	RateLimitResetTimes map[ModelFamily]int64 `json:"rateLimitResetTimes,omitempty"`

	// HasAccess is the tri-state true|false|null field from the persisted
	// schema in section 6; AccessState()/SetAccessState() are the
	// sum-type-shaped accessors used by selection code.
	HasAccess *bool `json:"hasAccess,omitempty"`

	LastError   string `json:"lastError,omitempty"`
	LastErrorAt int64  `json:"lastErrorAt,omitempty"`
}

// AccessState reports the account's tri-state access knowledge, derived
// from the JSON-friendly HasAccess pointer.
func (a *Account) AccessState() AccessState {
	if a.HasAccess == nil {
		return AccessUnknown
	}
	if *a.HasAccess {
		return AccessValid
	}
	return AccessInvalid
}

// SetAccessState updates both the in-memory tri-state and the JSON-facing
// pointer together so callers never have to juggle both.
func (a *Account) SetAccessState(s AccessState) {
	switch s {
	case AccessValid:
		v := true
		a.HasAccess = &v
	case AccessInvalid:
		v := false
		a.HasAccess = &v
	default:
		a.HasAccess = nil
	}
}

// IsRateLimitedFor reports whether the account has an active (non-expired)
// rate limit for the given family as of nowMs.
func (a *Account) IsRateLimitedFor(family ModelFamily, nowMs int64) bool {
	if a.RateLimitResetTimes == nil {
		return false
	}
	resetAt, ok := a.RateLimitResetTimes[family]
	if !ok {
		return false
	}
	return resetAt > nowMs
}

// PruneExpiredRateLimits removes rate-limit entries whose reset time has
// already passed, per the "do not keep expired entries around" design note.
func (a *Account) PruneExpiredRateLimits(nowMs int64) {
	if len(a.RateLimitResetTimes) == 0 {
		return
	}
	for family, resetAt := range a.RateLimitResetTimes {
		if resetAt <= nowMs {
			delete(a.RateLimitResetTimes, family)
		}
	}
}

// IsStale reports whether the account's access token is missing or expired
// as of nowMs.
func (a *Account) IsStale(nowMs int64) bool {
	if a.Access == "" {
		return true
	}
	if a.Expires > 0 && nowMs >= a.Expires {
		return true
	}
	return false
}

// Credential is the tuple the broker hands to callers.
type Credential struct {
	Access    string
	Refresh   string
	ProjectID string
	Expires   int64
}

// AccountStorage is the on-disk shape: {version, accounts, activeIndex}.
type AccountStorage struct {
	Version     int        `json:"version"`
	Accounts    []*Account `json:"accounts"`
	ActiveIndex int        `json:"activeIndex"`
}

// StorageVersion is the only supported on-disk schema version; anything
// else is treated as absent (no implicit migration in the core).
const StorageVersion = 2
