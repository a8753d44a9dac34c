package main

import (
	"context"
	"testing"
	"time"

	"github.com/blacksmithgu/amadeus/internal/game"
	"github.com/blacksmithgu/amadeus/internal/session"
)

type noopLibrary struct{}

func (noopLibrary) BuildQuiz(_ context.Context, _ int) (*game.Quiz, error) {
	return &game.Quiz{}, nil
}

func (noopLibrary) Audio(_ context.Context, _ game.AudioHandle) ([]byte, error) {
	return nil, nil
}

func TestRunMetricsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sessions := session.NewDirectory()
	rooms := game.NewRegistry(ctx, game.DefaultConfiguration(), noopLibrary{}, sessions)

	done := make(chan struct{})
	go func() {
		RunMetrics(ctx, rooms, sessions, time.Millisecond)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("metrics loop did not stop on cancel")
	}
}
