// Package keepalive restarts interaction capture when it dies, for ROMs that
// kill long-running shell children.
package keepalive

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nzlov/adaptivehz/internal/metrics"
)

const (
	minBackoff  = time.Second
	maxBackoff  = 30 * time.Second
	stableAfter = time.Minute
)

type Supervisor struct {
	enabled atomic.Bool
	logger  *slog.Logger

	wake chan struct{}

	minBackoff time.Duration
	maxBackoff time.Duration
}

func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		logger:     logger.With("component", "keepalive"),
		wake:       make(chan struct{}, 1),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

func (s *Supervisor) Enable() {
	if !s.enabled.Swap(true) {
		s.logger.Info("keep-alive enabled")
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

func (s *Supervisor) Disable() {
	if s.enabled.Swap(false) {
		s.logger.Info("keep-alive disabled")
	}
}

func (s *Supervisor) Enabled() bool { return s.enabled.Load() }

// Set follows a persisted flag.
func (s *Supervisor) Set(v bool) {
	if v {
		s.Enable()
	} else {
		s.Disable()
	}
}

// Run runs fn until ctx is done. While keep-alive is enabled an exited fn is
// restarted with exponential backoff; otherwise Run parks until keep-alive is
// enabled or ctx ends.
func (s *Supervisor) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	backoff := s.minBackoff
	for {
		started := time.Now()
		err := fn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("capture exited", "name", name, "error", err, "uptime", time.Since(started))

		if time.Since(started) > stableAfter {
			backoff = s.minBackoff
		}
		if !s.Enabled() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				backoff = s.minBackoff
				continue
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		metrics.CaptureRestarts.Inc()
		s.logger.Info("restarting capture", "name", name, "after", backoff)
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}
