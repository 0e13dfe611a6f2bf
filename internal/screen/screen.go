// Package screen follows the panel backlight so interaction capture can be
// paused while the screen is off.
package screen

import (
	"context"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
)

const DefaultBacklightPath = "/sys/class/leds/lcd-backlight/brightness"

type Handler interface {
	ScreenOn()
	ScreenOff()
}

type Watcher struct {
	path    string
	handler Handler
	logger  *slog.Logger

	on *bool
}

func NewWatcher(path string, h Handler, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, handler: h, logger: logger.With("component", "screen")}
}

// Run watches the backlight node until ctx is done. A missing node is not an
// error; the daemon then simply never pauses.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := os.Stat(w.path); err != nil {
		w.logger.Warn("backlight node unavailable, screen tracking disabled", "path", w.path, "error", err)
		<-ctx.Done()
		return ctx.Err()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(w.path); err != nil {
		w.logger.Warn("cannot watch backlight node", "path", w.path, "error", err)
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) {
				w.Check()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// Check reads the brightness once and reports a transition.
func (w *Watcher) Check() {
	data, err := os.ReadFile(w.path)
	if err != nil || len(data) == 0 {
		return
	}
	on := data[0] != '0'
	if w.on != nil && *w.on == on {
		return
	}
	w.on = &on
	w.logger.Info("screen state", "on", on)
	if on {
		w.handler.ScreenOn()
	} else {
		w.handler.ScreenOff()
	}
}
