// Command gateway is a demo HTTP entrypoint wiring the dispatch loop to a
// toy streaming handler, with logrus request logging and a gin-routed
// status endpoint. Mirrors the teacher's cmd/server entrypoint shape.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/antigravity-pool/accountpool/internal/account"
	"github.com/antigravity-pool/accountpool/internal/account/broker"
	"github.com/antigravity-pool/accountpool/internal/account/pool"
	"github.com/antigravity-pool/accountpool/internal/account/refresh"
	"github.com/antigravity-pool/accountpool/internal/account/store"
	"github.com/antigravity-pool/accountpool/internal/config"
	"github.com/antigravity-pool/accountpool/internal/dispatch"
	"github.com/antigravity-pool/accountpool/internal/utils"
	"github.com/antigravity-pool/accountpool/internal/webui"
)

var log = logrus.New()

func main() {
	cfg := config.DefaultConfig()
	if err := cfg.Load(os.Getenv("ACCOUNTPOOL_CONFIG")); err != nil {
		utils.Warn("failed to load config: %v", err)
	}
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	s := store.New(nil)
	storage := s.Load(cfg.AccountsFilePath())

	p := pool.New(pool.WithStored(storage), pool.WithOnMutate(func(reason account.SwitchReason, acc *account.Account) {
		utils.Debug("pool mutation: %s on %s", reason, acc.Email)
	}))

	b := broker.New(p, s, refresh.New(nil), account.SystemClock{}, cfg.AccountsFilePath(), cfg.LegacyCredentialPath())
	loop := dispatch.New(adapter{b}, time.Minute)

	r := gin.New()
	r.Use(requestLogger())
	webui.NewHandler(p, utils.GetLogger()).Register(r)
	r.POST("/v1/dispatch/:model", dispatchHandler(loop))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	utils.Info("gateway listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatal(err)
	}
}

// adapter narrows broker.Broker to dispatch.CredentialSource.
type adapter struct {
	b *broker.Broker
}

func (a adapter) GetCredentialForModel(ctx context.Context, modelID string) (*broker.Selection, error) {
	return a.b.GetCredentialForModel(ctx, modelID)
}

func (a adapter) MarkRateLimited(acc *account.Account, durationMs int64, family account.ModelFamily) {
	a.b.MarkRateLimited(acc, durationMs, family)
}

// dispatchHandler demonstrates wiring a request through the dispatch loop.
// The actual model-inference client is out of scope; this stands in with a
// trivial attempt that immediately touches the watchdog and succeeds.
func dispatchHandler(loop *dispatch.Loop) gin.HandlerFunc {
	return func(c *gin.Context) {
		model := c.Param("model")
		err := loop.Run(c.Request.Context(), config.AntigravityProvider, model, func(ctx context.Context, wd *dispatch.Watchdog, cred *account.Credential) error {
			wd.Touch()
			return nil
		})
		if err != nil {
			c.JSON(502, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Info("request")
	}
}
