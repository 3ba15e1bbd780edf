// Package webui exposes a read-only JSON status endpoint summarizing the
// account pool for operators, plus a log tail fed by the shared logger's
// listener fan-out.
package webui

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/antigravity-pool/accountpool/internal/account"
	"github.com/antigravity-pool/accountpool/internal/account/pool"
	"github.com/antigravity-pool/accountpool/internal/utils"
)

// AccountSummary is the redacted, JSON-facing view of an account: no
// refresh or access token is ever exposed here.
type AccountSummary struct {
	Index            int                          `json:"index"`
	Email            string                       `json:"email,omitempty"`
	Tier             account.Tier                 `json:"tier,omitempty"`
	HasAccess        *bool                        `json:"hasAccess"`
	LastUsed         int64                        `json:"lastUsed"`
	LastSwitchReason account.SwitchReason         `json:"lastSwitchReason,omitempty"`
	RateLimits       map[account.ModelFamily]int64 `json:"rateLimits,omitempty"`
}

// Handler serves the status endpoint and recent log history.
type Handler struct {
	pool *pool.Pool

	mu      sync.Mutex
	recent  []utils.LogEntry
	maxKept int
}

// NewHandler wires a Handler to pool and subscribes to the shared logger so
// the status page can show recent activity.
func NewHandler(p *pool.Pool, logger *utils.Logger) *Handler {
	h := &Handler{pool: p, maxKept: 200}
	if logger != nil {
		logger.AddListener(h.onLogEntry)
	}
	return h
}

func (h *Handler) onLogEntry(entry utils.LogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent = append(h.recent, entry)
	if len(h.recent) > h.maxKept {
		h.recent = h.recent[1:]
	}
}

// Register mounts the status routes onto r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/status", h.getStatus)
	r.GET("/status/log", h.getLog)
}

func (h *Handler) getStatus(c *gin.Context) {
	accounts := h.pool.Accounts()
	summaries := make([]AccountSummary, 0, len(accounts))
	for i, acc := range accounts {
		summaries = append(summaries, AccountSummary{
			Index:            i,
			Email:            acc.Email,
			Tier:             acc.Tier,
			HasAccess:        acc.HasAccess,
			LastUsed:         acc.LastUsed,
			LastSwitchReason: acc.LastSwitchReason,
			RateLimits:       acc.RateLimitResetTimes,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"accountCount": len(accounts),
		"accounts":     summaries,
	})
}

func (h *Handler) getLog(c *gin.Context) {
	h.mu.Lock()
	entries := make([]utils.LogEntry, len(h.recent))
	copy(entries, h.recent)
	h.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
