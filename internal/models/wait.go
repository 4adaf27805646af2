package models

import (
	"context"
	"log/slog"
	"time"
)

// WaitReady polls m until model is healthy or ctx ends. The first check runs
// immediately.
func WaitReady(ctx context.Context, m Manager, model string, interval time.Duration, log *slog.Logger) error {
	if err := m.Healthy(ctx, model); err == nil {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := m.Healthy(ctx, model)
			if err == nil {
				return nil
			}
			log.Debug("endpoint not ready", "model", model, "err", err)
		}
	}
}
