package main

import (
	"context"
	"log/slog"
	"time"

	"qlink/internal/queue"
)

// expireStale periodically moves tickets left serving past after to missed.
func expireStale(ctx context.Context, queues *queue.Service, after time.Duration, log *slog.Logger) {
	every := after / 4
	if every < time.Minute {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := queues.ExpireStale(ctx, after)
			if err != nil {
				log.Error("expire stale tickets failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info("expired stale tickets", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
