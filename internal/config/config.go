package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/antigravity-pool/accountpool/internal/utils"
)

// Config is the runtime configuration for the account pool, dispatch loop,
// and demo gateway. Values are layered: defaults, then an optional config
// file (JSON or YAML, detected by extension), then environment variables.
type Config struct {
	mu sync.RWMutex

	Debug bool `json:"debug" yaml:"debug"`

	// StateDir holds the account store's JSON file and is created with
	// mode 0700; the file itself is written with mode 0600.
	StateDir string `json:"stateDir" yaml:"stateDir"`

	// MaxAccounts is the hard cap on pool size.
	MaxAccounts int `json:"maxAccounts" yaml:"maxAccounts"`

	// RefreshTimeoutMs bounds the token refresher's OAuth call.
	RefreshTimeoutMs int64 `json:"refreshTimeoutMs" yaml:"refreshTimeoutMs"`

	// RefreshFailureCooldownMs is the cooldown applied to an account whose
	// token refresh failed, to avoid immediately re-selecting it.
	RefreshFailureCooldownMs int64 `json:"refreshFailureCooldownMs" yaml:"refreshFailureCooldownMs"`

	// Dispatch / activity watchdog tuning.
	MaxAttemptsAntigravity  int   `json:"maxAttemptsAntigravity" yaml:"maxAttemptsAntigravity"`
	MaxAttemptsOther        int   `json:"maxAttemptsOther" yaml:"maxAttemptsOther"`
	WatchdogPollIntervalMs  int64 `json:"watchdogPollIntervalMs" yaml:"watchdogPollIntervalMs"`
	ActivityTimeoutMs       int64 `json:"activityTimeoutMs" yaml:"activityTimeoutMs"`
	SilentRateLimitCooldown int64 `json:"silentRateLimitCooldownMs" yaml:"silentRateLimitCooldownMs"`
	ExplicitRateLimitCooldown int64 `json:"explicitRateLimitCooldownMs" yaml:"explicitRateLimitCooldownMs"`

	// Server configuration for the demo gateway.
	Port int    `json:"port" yaml:"port"`
	Host string `json:"host" yaml:"host"`
}

// DefaultConfig returns a Config populated with the values named throughout
// spec.md (15s refresh timeout, 60s refresh-failure cooldown, 30s activity
// timeout polled every 5s, 120s silent/explicit rate-limit cooldown, 3
// attempts for the Antigravity provider).
func DefaultConfig() *Config {
	return &Config{
		StateDir:                  defaultStateDir(),
		MaxAccounts:               10,
		RefreshTimeoutMs:          15_000,
		RefreshFailureCooldownMs:  60_000,
		MaxAttemptsAntigravity:    3,
		MaxAttemptsOther:          1,
		WatchdogPollIntervalMs:    5_000,
		ActivityTimeoutMs:         30_000,
		SilentRateLimitCooldown:   120_000,
		ExplicitRateLimitCooldown: 120_000,
		Port:                      8080,
		Host:                      "0.0.0.0",
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".accountpool"
	}
	return filepath.Join(home, ".config", "accountpool")
}

// AccountsFilePath is the path to the versioned JSON account store file.
func (c *Config) AccountsFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filepath.Join(c.StateDir, "accounts.json")
}

// LegacyCredentialPath is the single-credential seed file used only when no
// multi-account store exists yet.
func (c *Config) LegacyCredentialPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filepath.Join(c.StateDir, "credentials.json")
}

// Load layers a config file (if present at path) and environment variables
// on top of the receiver's current (default) values.
func (c *Config) Load(path string) error {
	if path != "" && utils.FileExists(path) {
		if err := c.loadFromFile(path); err != nil {
			return err
		}
	}
	c.loadFromEnv()
	utils.SetDebug(c.Debug)
	return nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, c)
	default:
		return json.Unmarshal(data, c)
	}
}

func (c *Config) loadFromEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("ACCOUNTPOOL_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("ACCOUNTPOOL_DEBUG"); v == "true" {
		c.Debug = true
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("HOST"); v != "" {
		c.Host = v
	}
}
