package ipc

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/tiroq/dualcap/internal/logging"
)

// DefaultPollInterval is the fallback check interval.
const DefaultPollInterval = time.Second

// Watcher delivers commands written to the command file.
type Watcher struct {
	paths   Paths
	handler func(Command)
	poll    time.Duration
	log     zerolog.Logger
}

// NewWatcher creates a watcher calling handler for each command, in order,
// on the Run goroutine.
func NewWatcher(p Paths, handler func(Command)) *Watcher {
	return &Watcher{
		paths:   p,
		handler: handler,
		poll:    DefaultPollInterval,
		log:     logging.WithComponent("ipc"),
	}
}

// SetPollInterval overrides DefaultPollInterval.
func (w *Watcher) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.poll = d
	}
}

// Run watches until ctx is done. It uses fsnotify when available and polls
// otherwise; a poll also runs alongside fsnotify in case events are missed.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.paths.Dir, 0755); err != nil {
		return err
	}
	// A command left over from before the daemon started is stale.
	os.Remove(w.paths.Command())

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn().Err(err).Msg("fsnotify not available, falling back to polling")
		return w.runPolling(ctx)
	}
	defer watcher.Close()

	if err := watcher.Add(w.paths.Dir); err != nil {
		w.log.Warn().Err(err).Msg("failed to watch state dir, falling back to polling")
		return w.runPolling(ctx)
	}
	w.log.Info().Str("dir", w.paths.Dir).Msg("command watcher started (fsnotify)")

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	cmdPath := filepath.Clean(w.paths.Command())

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				w.log.Info().Msg("fsnotify watcher closed, switching to polling")
				return w.runPolling(ctx)
			}
			if filepath.Clean(event.Name) == cmdPath && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.check()
			}
		case <-ticker.C:
			w.check()
		case err, ok := <-watcher.Errors:
			if !ok {
				w.log.Info().Msg("fsnotify error channel closed, switching to polling")
				return w.runPolling(ctx)
			}
			w.log.Error().Err(err).Msg("file watcher error")
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	w.log.Info().Dur("interval", w.poll).Msg("command watcher started (polling)")
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	cmd, ok, err := ReadCommand(w.paths)
	if err != nil {
		w.log.Warn().Err(err).Msg("invalid command ignored")
		return
	}
	if !ok {
		return
	}
	w.log.Info().Str("command", cmd.String()).Msg("command received")
	w.handler(cmd)
}
