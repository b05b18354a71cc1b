package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"hackreg/tokens"
)

// TokenJanitor periodically deletes expired single-use tokens. Expiry
// is enforced at validation time regardless; the janitor only keeps the
// table from accumulating dead rows.
type TokenJanitor struct {
	Tokens   *tokens.Store
	Logger   *logrus.Logger
	Interval time.Duration
}

func NewTokenJanitor(store *tokens.Store, logger *logrus.Logger) *TokenJanitor {
	return &TokenJanitor{
		Tokens:   store,
		Logger:   logger,
		Interval: 1 * time.Hour,
	}
}

func (tj *TokenJanitor) Start(ctx context.Context) {
	tj.Logger.Info("Token janitor started")

	ticker := time.NewTicker(tj.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			tj.Logger.Info("Token janitor shutting down...")
			return
		case <-ticker.C:
			tj.sweep()
		}
	}
}

func (tj *TokenJanitor) sweep() {
	removed, err := tj.Tokens.DeleteExpired()
	if err != nil {
		tj.Logger.WithError(err).Error("Failed to sweep expired tokens")
		return
	}
	if removed > 0 {
		tj.Logger.WithField("removed", removed).Info("Swept expired tokens")
	}
}
