// Package prefs persists the activation flags in a small YAML file and
// reloads it when it is edited behind the daemon's back.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

type Flags struct {
	DynamicEnabled   bool `yaml:"dynamic_enabled" json:"dynamic_enabled"`
	ADBGranted       bool `yaml:"adb_granted" json:"adb_granted"`
	KeepAliveEnabled bool `yaml:"keep_alive_enabled" json:"keep_alive_enabled"`
}

type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	flags   Flags
	modTime time.Time

	subMu sync.Mutex
	subs  []func(Flags)
}

// Open loads path. A missing file yields all flags false.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger.With("component", "prefs")}
	if _, err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Flags() Flags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

func (s *Store) AdaptiveEnabled() bool  { return s.Flags().DynamicEnabled }
func (s *Store) KeepAliveEnabled() bool { return s.Flags().KeepAliveEnabled }

func (s *Store) SetDynamicEnabled(v bool) error {
	return s.Update(func(f *Flags) { f.DynamicEnabled = v })
}

func (s *Store) SetADBGranted(v bool) error {
	return s.Update(func(f *Flags) { f.ADBGranted = v })
}

func (s *Store) SetKeepAliveEnabled(v bool) error {
	return s.Update(func(f *Flags) { f.KeepAliveEnabled = v })
}

// Update applies fn and persists the result atomically.
func (s *Store) Update(fn func(*Flags)) error {
	s.mu.Lock()
	next := s.flags
	fn(&next)
	if next == s.flags {
		s.mu.Unlock()
		return nil
	}
	if err := s.write(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.flags = next
	s.mu.Unlock()

	s.notify(next)
	return nil
}

// OnChange registers fn to be called with the new flags after every change.
func (s *Store) OnChange(fn func(Flags)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) notify(f Flags) {
	s.subMu.Lock()
	subs := append([]func(Flags){}, s.subs...)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(f)
	}
}

// write must be called with mu held.
func (s *Store) write(f Flags) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("prefs: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("prefs: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("prefs: %w", err)
	}
	if fi, err := os.Stat(s.path); err == nil {
		s.modTime = fi.ModTime()
	}
	return nil
}

// reload re-reads the file when its modtime moved and reports whether the
// flags changed.
func (s *Store) reload() (bool, error) {
	fi, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("prefs: %w", err)
	}

	s.mu.Lock()
	if fi.ModTime().Equal(s.modTime) {
		s.mu.Unlock()
		return false, nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("prefs: %w", err)
	}
	var f Flags
	if err := yaml.Unmarshal(data, &f); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("prefs: parse %s: %w", s.path, err)
	}
	s.modTime = fi.ModTime()
	changed := f != s.flags
	s.flags = f
	s.mu.Unlock()

	if changed {
		s.notify(f)
	}
	return changed, nil
}

// Watch reloads the file on external edits until ctx is done. The directory
// is watched so editors that replace the file are seen too.
func (s *Store) Watch(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("prefs: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			changed, err := s.reload()
			if err != nil {
				s.logger.Warn("reload failed", "error", err)
				continue
			}
			if changed {
				s.logger.Info("prefs reloaded", "flags", s.Flags())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}
