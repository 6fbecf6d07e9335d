package taxonomy

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stalvia/pricewatch/internal/checksum"
)

// Watch reloads the store whenever the seed file changes on disk, until ctx
// is cancelled. Editors typically write via rename, so the watch is placed
// on the seed's directory rather than the file itself. Reloads are debounced
// and deduplicated by content checksum, so touch-without-change is a no-op.
func Watch(ctx context.Context, store *Store, seedPath string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(seedPath)
	if err := w.Add(dir); err != nil {
		return err
	}

	lastSum := ""
	if data, readErr := os.ReadFile(seedPath); readErr == nil {
		lastSum = checksum.Sum(data)
	}

	logger.Info("taxonomy watcher: started", slog.String("seed", seedPath))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(200 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("taxonomy watcher: stopped")
			return nil

		case <-reloadCh:
			data, readErr := os.ReadFile(seedPath)
			if readErr != nil {
				logger.Warn("taxonomy watcher: read failed", slog.String("error", readErr.Error()))
				continue
			}
			sum := checksum.Sum(data)
			if sum == lastSum {
				continue
			}
			nodes, parseErr := Parse(data)
			if parseErr != nil {
				logger.Warn("taxonomy watcher: parse failed, keeping previous tree",
					slog.String("error", parseErr.Error()))
				continue
			}
			if err := store.Replace(nodes); err != nil {
				logger.Warn("taxonomy watcher: invalid tree, keeping previous",
					slog.String("error", err.Error()))
				continue
			}
			lastSum = sum
			logger.Info("taxonomy watcher: reloaded", slog.Int("nodes", store.Len()))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(seedPath) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("taxonomy watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
