// Command amadeus runs the multiplayer song-guessing server: an HTTP front
// end for registration and room pages, a websocket game protocol behind it,
// and a SQLite song catalog feeding the quizzes.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/blacksmithgu/amadeus/internal/game"
	"github.com/blacksmithgu/amadeus/internal/httpapi"
	"github.com/blacksmithgu/amadeus/internal/library"
	"github.com/blacksmithgu/amadeus/internal/session"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &Config{}
	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

// runServe wires the whole server together and blocks until shutdown.
func runServe(ctx context.Context, cfg *Config) error {
	setupLogging(cfg.debug)
	slog.Info("starting server", "version", Version, "addr", cfg.addr(), "db", cfg.db)

	store, err := library.Open(cfg.db, cfg.audioDir)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("close song library", "err", closeErr)
		}
	}()

	sessions := session.NewDirectory()

	roomCtx, cancelRooms := context.WithCancel(ctx)
	defer cancelRooms()
	rooms := game.NewRegistry(roomCtx, cfg.roomConfig(), store, sessions)
	defer rooms.Shutdown()

	if cfg.metricsInterval > 0 {
		go RunMetrics(ctx, rooms, sessions, cfg.metricsInterval)
	}

	server := httpapi.New(rooms, sessions)
	slog.Info("listening", "addr", cfg.addr(), "tls", cfg.tlsCert != "")
	if cfg.tlsCert != "" {
		err = server.RunTLS(ctx, cfg.addr(), cfg.tlsCert, cfg.tlsKey)
	} else {
		err = server.Run(ctx, cfg.addr())
	}
	if err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
