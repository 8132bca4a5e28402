package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner is any cache instance that can sweep expired entries.
type Pruner interface {
	Prune() int
}

// RunPruner sweeps the given caches on a fixed interval until the context is
// cancelled. The application root starts this once for all instances.
func RunPruner(ctx context.Context, interval time.Duration, logger *zap.SugaredLogger, caches ...Pruner) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debugw("Cache pruner stopping")
			return
		case <-ticker.C:
			removed := 0
			for _, c := range caches {
				removed += c.Prune()
			}
			if removed > 0 {
				logger.Debugw("Pruned expired cache entries", "removed", removed)
			}
		}
	}
}
