// Package pool implements the in-memory account pool: selection, rotation,
// and mutation primitives described in spec.md section 4.2. It is the
// single shared, mutex-guarded source of truth the broker and dispatch loop
// operate against.
package pool

import (
	"sync"

	"github.com/antigravity-pool/accountpool/internal/account"
)

// SelectionMode chooses between sticky (keep using the current account) and
// round-robin (advance a cursor on each selection).
type SelectionMode int

const (
	Sticky SelectionMode = iota
	RoundRobin
)

// OnMutate is fired outside the pool's lock whenever a mutator changes an
// account's state, mirroring the teacher's state-change callback pattern.
type OnMutate func(reason account.SwitchReason, acc *account.Account)

// Pool holds the account sequence and the cursors used to select among
// them. There are no read-heavy paths worth splitting from writes here (per
// the spec's explicit concurrency note), so a plain sync.Mutex guards
// everything — no RWMutex.
type Pool struct {
	mu sync.Mutex

	accounts             []*account.Account
	currentAccountIndex  int
	rotationIndex        int

	clock    account.Clock
	onMutate OnMutate
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithClock injects a Clock so selection math never calls time.Now()
// directly, letting tests advance time without sleeping.
func WithClock(c account.Clock) Option {
	return func(p *Pool) { p.clock = c }
}

// WithOnMutate registers a mutation observer, fired outside the lock.
func WithOnMutate(fn OnMutate) Option {
	return func(p *Pool) { p.onMutate = fn }
}

// WithStored hydrates the pool from a previously loaded AccountStorage.
func WithStored(storage *account.AccountStorage) Option {
	return func(p *Pool) {
		if storage == nil {
			return
		}
		p.accounts = storage.Accounts
		idx := storage.ActiveIndex
		if idx < 0 || idx >= len(p.accounts) {
			idx = 0
		}
		p.currentAccountIndex = idx
		p.rotationIndex = idx
	}
}

// WithSeed seeds a single account at index 0 when no stored state exists.
// Only applied if the pool is otherwise empty at construction time.
func WithSeed(seed *account.Account) Option {
	return func(p *Pool) {
		if len(p.accounts) > 0 || seed == nil {
			return
		}
		p.accounts = []*account.Account{seed}
	}
}

// New constructs a Pool. If no stored accounts are hydrated and a seed is
// supplied, the pool starts with that single account at index 0; otherwise
// it starts empty.
func New(opts ...Option) *Pool {
	p := &Pool{clock: account.SystemClock{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Len reports the number of accounts currently held.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.accounts)
}

// Snapshot returns the current AccountStorage shape for persistence.
func (p *Pool) Snapshot() *account.AccountStorage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &account.AccountStorage{
		Version:     account.StorageVersion,
		Accounts:    p.accounts,
		ActiveIndex: p.currentAccountIndex,
	}
}

func (p *Pool) fire(reason account.SwitchReason, acc *account.Account) {
	if p.onMutate == nil || acc == nil {
		return
	}
	go p.onMutate(reason, acc)
}

// SelectAccountForFamily is the central selection algorithm (section 4.2).
func (p *Pool) SelectAccountForFamily(family account.ModelFamily, mode SelectionMode) *account.Account {
	p.mu.Lock()

	now := p.clock.NowMs()
	for _, acc := range p.accounts {
		acc.PruneExpiredRateLimits(now)
	}

	if len(p.accounts) == 0 {
		p.mu.Unlock()
		return nil
	}

	if mode == RoundRobin && len(p.accounts) > 1 {
		next := p.nextForFamilyLocked(family, now)
		if next != nil {
			next.LastSwitchReason = account.ReasonRotation
			p.currentAccountIndex = p.indexOfLocked(next)
			p.mu.Unlock()
			p.fire(account.ReasonRotation, next)
			return next
		}
		p.mu.Unlock()
		return nil
	}

	// Sticky selection.
	current := p.accounts[p.currentAccountIndex]
	if !current.IsRateLimitedFor(family, now) {
		if p.tierUpgradeAvailableLocked(current, family, now) {
			next := p.nextForFamilyLocked(family, now)
			if next != nil {
				p.currentAccountIndex = p.indexOfLocked(next)
				p.mu.Unlock()
				p.fire(next.LastSwitchReason, next)
				return next
			}
			p.mu.Unlock()
			return nil
		}
		current.LastUsed = now
		p.mu.Unlock()
		return current
	}

	next := p.nextForFamilyLocked(family, now)
	if next != nil {
		p.currentAccountIndex = p.indexOfLocked(next)
	}
	p.mu.Unlock()
	if next != nil {
		p.fire(next.LastSwitchReason, next)
	}
	return next
}

// tierUpgradeAvailableLocked reports whether the current account isn't paid
// but some other non-rate-limited account is, per the sticky-only tier
// upgrade rule. Kept asymmetric with round-robin per SPEC_FULL's
// Open Question resolution — see DESIGN.md.
func (p *Pool) tierUpgradeAvailableLocked(current *account.Account, family account.ModelFamily, now int64) bool {
	if current.Tier == account.TierPaid {
		return false
	}
	for _, acc := range p.accounts {
		if acc == current {
			continue
		}
		if acc.Tier == account.TierPaid && !acc.IsRateLimitedFor(family, now) {
			return true
		}
	}
	return false
}

// nextForFamilyLocked implements candidate selection (section 4.2, step 2).
func (p *Pool) nextForFamilyLocked(family account.ModelFamily, now int64) *account.Account {
	filtered := make([]*account.Account, 0, len(p.accounts))
	for _, acc := range p.accounts {
		if acc.IsRateLimitedFor(family, now) {
			continue
		}
		if acc.AccessState() == account.AccessInvalid {
			continue
		}
		filtered = append(filtered, acc)
	}
	if len(filtered) == 0 {
		return nil
	}

	var confirmed []*account.Account
	for _, acc := range filtered {
		if acc.AccessState() == account.AccessValid {
			confirmed = append(confirmed, acc)
		}
	}

	var candidates []*account.Account
	if len(confirmed) > 0 {
		if paid := paidSubset(confirmed); len(paid) > 0 {
			candidates = paid
		} else {
			candidates = confirmed
		}
	} else {
		if paid := paidSubset(filtered); len(paid) > 0 {
			candidates = paid
		} else {
			candidates = filtered
		}
	}

	selected := candidates[p.rotationIndex%len(candidates)]
	p.rotationIndex++
	selected.LastUsed = now
	selected.LastSwitchReason = account.ReasonRotation
	return selected
}

func paidSubset(accounts []*account.Account) []*account.Account {
	var paid []*account.Account
	for _, acc := range accounts {
		if acc.Tier == account.TierPaid {
			paid = append(paid, acc)
		}
	}
	return paid
}

func (p *Pool) indexOfLocked(target *account.Account) int {
	for i, acc := range p.accounts {
		if acc == target {
			return i
		}
	}
	return p.currentAccountIndex
}

// AddAccount appends a new account, failing if the pool is already at the
// 10-account cap.
func (p *Pool) AddAccount(acc *account.Account) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	const maxAccounts = 10
	if len(p.accounts) >= maxAccounts {
		return false
	}

	if acc.RateLimitResetTimes == nil {
		acc.RateLimitResetTimes = map[account.ModelFamily]int64{}
	}
	acc.LastUsed = 0
	if acc.AddedAt == 0 {
		acc.AddedAt = p.clock.NowMs()
	}
	p.accounts = append(p.accounts, acc)
	return true
}

// RemoveAccount removes the account at index and re-indexes the tail,
// clamping currentAccountIndex back into range.
func (p *Pool) RemoveAccount(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.accounts) {
		return false
	}
	p.accounts = append(p.accounts[:index], p.accounts[index+1:]...)

	if len(p.accounts) == 0 {
		p.currentAccountIndex = 0
		p.rotationIndex = 0
	} else if p.currentAccountIndex >= len(p.accounts) {
		p.currentAccountIndex = len(p.accounts) - 1
	}
	return true
}

// MarkRateLimited sets acc's rate-limit reset time for family to now+durationMs.
func (p *Pool) MarkRateLimited(acc *account.Account, durationMs int64, family account.ModelFamily) {
	p.mu.Lock()
	now := p.clock.NowMs()
	if acc.RateLimitResetTimes == nil {
		acc.RateLimitResetTimes = map[account.ModelFamily]int64{}
	}
	acc.RateLimitResetTimes[family] = now + durationMs
	acc.LastSwitchReason = account.ReasonRateLimit
	p.mu.Unlock()
	p.fire(account.ReasonRateLimit, acc)
}

// MarkInvalidCredentials flips hasAccess to false and stamps the error.
func (p *Pool) MarkInvalidCredentials(acc *account.Account, errMsg string) {
	p.mu.Lock()
	acc.SetAccessState(account.AccessInvalid)
	acc.LastError = errMsg
	acc.LastErrorAt = p.clock.NowMs()
	acc.LastSwitchReason = account.ReasonInvalidCreds
	p.mu.Unlock()
	p.fire(account.ReasonInvalidCreds, acc)
}

// MarkValidCredentials flips hasAccess to true and clears the error pair.
func (p *Pool) MarkValidCredentials(acc *account.Account) {
	p.mu.Lock()
	acc.SetAccessState(account.AccessValid)
	acc.LastError = ""
	acc.LastErrorAt = 0
	p.mu.Unlock()
}

// AccountUpdate carries the optional fields UpdateAccount may assign.
type AccountUpdate struct {
	Access       *string
	Expires      *int64
	RefreshToken *string
	ProjectID    *string
	Email        *string
	Tier         *account.Tier
}

// UpdateAccount assigns only the provided fields, leaving the rest intact.
func (p *Pool) UpdateAccount(acc *account.Account, update AccountUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if update.Access != nil {
		acc.Access = *update.Access
	}
	if update.Expires != nil {
		acc.Expires = *update.Expires
	}
	if update.RefreshToken != nil {
		acc.RefreshToken = *update.RefreshToken
	}
	if update.ProjectID != nil {
		acc.ProjectID = *update.ProjectID
	}
	if update.Email != nil {
		acc.Email = *update.Email
	}
	if update.Tier != nil {
		acc.Tier = *update.Tier
	}
}

// MinWaitTimeForFamily returns 0 if any non-rate-limited account exists for
// family, else the minimum remaining wait across rate-limited accounts
// (never negative), or 0 if no family entries exist at all.
func (p *Pool) MinWaitTimeForFamily(family account.ModelFamily) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.NowMs()
	var minWait int64 = -1
	for _, acc := range p.accounts {
		resetAt, ok := acc.RateLimitResetTimes[family]
		if !ok || resetAt <= now {
			return 0
		}
		wait := resetAt - now
		if minWait < 0 || wait < minWait {
			minWait = wait
		}
	}
	if minWait < 0 {
		return 0
	}
	return minWait
}

// FindByRefreshToken performs a linear scan for natural-key reconciliation
// of externally supplied seed records.
func (p *Pool) FindByRefreshToken(token string) *account.Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, acc := range p.accounts {
		if acc.RefreshToken == token {
			return acc
		}
	}
	return nil
}

// Accounts returns a shallow copy of the account slice for read-only
// iteration (used by the webui status handler and CLI listing).
func (p *Pool) Accounts() []*account.Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*account.Account, len(p.accounts))
	copy(out, p.accounts)
	return out
}
