package sqlite

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uchilka-bot/uchilka/pkg/config"
)

// RunRetention sweeps stale entries every cfg.Interval until ctx is done.
// A sweep also runs immediately on start.
func (c *Cache) RunRetention(ctx context.Context, cfg config.RetentionConfig) error {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.sweep(ctx, cfg)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sweep(ctx, cfg)
		}
	}
}

func (c *Cache) sweep(ctx context.Context, cfg config.RetentionConfig) {
	n, err := c.PurgeStale(ctx, cfg.MaxAge, cfg.MinHits)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("cache retention sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		c.log.Info("cache retention sweep", zap.Int64("removed", n))
	}
}
