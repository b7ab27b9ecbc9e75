package oauth

import (
	"context"

	"go.uber.org/zap"
)

// CleanupExpiredSessions removes login attempts whose callback never arrived
func CleanupExpiredSessions(ctx context.Context, store SessionStore, log *zap.Logger) {
	n, err := store.DeleteExpired(ctx)
	if err != nil {
		log.Warn("Failed to delete expired oauth sessions", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("Deleted expired oauth sessions", zap.Int64("count", n))
	}
}
