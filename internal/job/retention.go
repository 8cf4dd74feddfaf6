package job

import (
	"context"
	"log/slog"
	"time"

	"BrowserUse-Gateway/pkg/logger"
)

// RunRetention evicts completed jobs older than ttl every interval until ctx
// ends. Processing jobs are never evicted. A non-positive ttl disables it.
func RunRetention(ctx context.Context, store Store, ttl, interval time.Duration) error {
	if store == nil || ttl <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	log := logger.Named("retention")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			evicted, err := store.Sweep(ctx, now.Add(-ttl))
			if err != nil {
				log.Error("sweep failed", slog.Any("error", err))
				continue
			}
			if evicted > 0 {
				log.Info("evicted completed jobs", slog.Int("count", evicted))
			}
		}
	}
}
