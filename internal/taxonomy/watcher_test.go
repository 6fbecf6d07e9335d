package taxonomy

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeSeed(t, dir, seedYAML)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	s, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, s, path, logger)
	time.Sleep(100 * time.Millisecond)

	writeSeed(t, dir, seedYAML+`  - id: conservas
    name: Conservas
    parent_id: alimentacion
`)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return s.Len() == 3
	}, "watcher did not reload changed seed")
}

func TestWatcher_KeepsTreeOnBadSeed(t *testing.T) {
	dir := t.TempDir()
	path := writeSeed(t, dir, seedYAML)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	s, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, s, path, logger)
	time.Sleep(100 * time.Millisecond)

	writeSeed(t, dir, "nodes: [")

	// Give the watcher time to pick up the bad seed and (correctly) ignore it.
	time.Sleep(600 * time.Millisecond)
	if s.Len() != 2 {
		t.Errorf("tree replaced by invalid seed: len = %d", s.Len())
	}

	// A subsequent good seed still reloads.
	writeSeed(t, dir, seedYAML+`  - id: bebidas
    name: Bebidas
`)
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return s.Len() == 3
	}, "watcher did not recover after bad seed")
}
