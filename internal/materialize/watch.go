package materialize

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the Parquet directory must be quiet before a
// watch-triggered rebuild starts.
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions configures Watch.
type WatchOptions struct {
	Debounce time.Duration
	// OnRebuild is called after every rebuild attempt (optional).
	OnRebuild func(err error)
}

// Watch rebuilds the database whenever a Parquet file in the Parquet
// directory is created, written, removed or renamed. Bursts of events are
// coalesced into one rebuild. Watch returns when ctx is cancelled.
func (m *Materializer) Watch(ctx context.Context, opts WatchOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(m.cfg.ParquetDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", m.cfg.ParquetDir, err)
	}
	m.logger.Info("watching parquet directory", "dir", m.cfg.ParquetDir)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".parquet" {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			m.logger.Debug("parquet changed", "file", filepath.Base(ev.Name), "op", ev.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(opts.Debounce)
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("parquet watch error", "error", err)

		case <-fire:
			fire = nil
			err := m.Rebuild(ctx)
			if opts.OnRebuild != nil {
				opts.OnRebuild(err)
			}
		}
	}
}
