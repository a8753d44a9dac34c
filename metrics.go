package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/blacksmithgu/amadeus/internal/game"
	"github.com/blacksmithgu/amadeus/internal/session"
)

// RunMetrics logs server stats every interval until ctx is canceled. Quiet
// when the server is idle.
func RunMetrics(ctx context.Context, rooms *game.Registry, sessions *session.Directory, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			listings := rooms.List()
			connected := 0
			for _, listing := range listings {
				connected += listing.Connected
			}
			if len(listings) > 0 || sessions.Len() > 0 {
				slog.Info("server stats",
					"rooms", len(listings),
					"connected", connected,
					"sessions", sessions.Len())
			}
		}
	}
}
