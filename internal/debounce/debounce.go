// Package debounce holds the refresh rate at maximum while the user
// interacts and drops it back to minimum after a quiet period.
//
// The Debouncer is a two-state machine (idle, boosted) that owns a single
// cancellable idle timer. All state lives on the goroutine running Run;
// Notify, Reset and timer expiry are posted into it.
package debounce

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nzlov/adaptivehz/internal/interaction"
	"github.com/nzlov/adaptivehz/internal/metrics"
)

const (
	DefaultIdleTimeout = 3500 * time.Millisecond
	defaultQueueSize   = 256
)

// Applier requests a refresh rate. Failures are the applier's business.
type Applier interface {
	ApplyForceMinimum(ctx context.Context)
	ApplyForceMaximum(ctx context.Context)
}

// Gate reports whether adaptive mode is switched on.
type Gate interface {
	AdaptiveEnabled() bool
}

type Timer interface {
	Stop() bool
}

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type Config struct {
	IdleTimeout time.Duration
	// OwnPackage is this application's package; its own UI never boosts.
	OwnPackage string
	QueueSize  int
}

type Debouncer struct {
	applier Applier
	gate    Gate
	cfg     Config
	clock   Clock
	logger  *slog.Logger

	signals chan interaction.Signal
	resets  chan struct{}
	expired chan uint64
	done    chan struct{}

	// owned by Run
	boosted bool
	timer   Timer
	gen     uint64

	boostedView atomic.Bool
}

func New(applier Applier, gate Gate, cfg Config, logger *slog.Logger) *Debouncer {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		applier: applier,
		gate:    gate,
		cfg:     cfg,
		clock:   realClock{},
		logger:  logger.With("component", "debounce"),
		signals: make(chan interaction.Signal, cfg.QueueSize),
		resets:  make(chan struct{}, 1),
		expired: make(chan uint64, 1),
		done:    make(chan struct{}),
	}
}

// Notify queues a signal. It never blocks; a full queue drops the signal.
func (d *Debouncer) Notify(s interaction.Signal) {
	select {
	case d.signals <- s:
	default:
		metrics.SignalsIgnored.WithLabelValues("queue_full").Inc()
	}
}

// Reset cancels the idle timer and returns to idle, requesting the minimum
// rate if adaptive mode is on.
func (d *Debouncer) Reset() {
	select {
	case d.resets <- struct{}{}:
	default:
	}
}

// Boosted reports the last state published by the loop.
func (d *Debouncer) Boosted() bool { return d.boostedView.Load() }

func (d *Debouncer) IdleTimeout() time.Duration { return d.cfg.IdleTimeout }

// Run processes signals until ctx is done. It must be called once.
func (d *Debouncer) Run(ctx context.Context) error {
	defer close(d.done)
	d.logger.Info("debouncer started", "idle_timeout", d.cfg.IdleTimeout, "own_package", d.cfg.OwnPackage)
	for {
		select {
		case <-ctx.Done():
			d.disarm()
			return ctx.Err()
		case s := <-d.signals:
			d.handle(ctx, s)
		case g := <-d.expired:
			d.expire(ctx, g)
		case <-d.resets:
			d.reset(ctx)
		}
	}
}

func (d *Debouncer) handle(ctx context.Context, s interaction.Signal) {
	if !d.gate.AdaptiveEnabled() {
		metrics.SignalsIgnored.WithLabelValues("disabled").Inc()
		return
	}
	if d.cfg.OwnPackage != "" && s.Package == d.cfg.OwnPackage {
		metrics.SignalsIgnored.WithLabelValues("self").Inc()
		return
	}
	if s.Kind == interaction.Unknown {
		metrics.SignalsIgnored.WithLabelValues("unknown").Inc()
		return
	}
	metrics.SignalsTotal.WithLabelValues(s.Kind.String()).Inc()

	if !d.boosted || s.Kind.Forces() {
		d.logger.Debug("interaction: forcing maximum", "kind", s.Kind, "package", s.Package)
		d.applier.ApplyForceMaximum(ctx)
		d.setBoosted(true)
	}
	d.arm()
}

func (d *Debouncer) expire(ctx context.Context, gen uint64) {
	if gen != d.gen || d.timer == nil {
		// a timer that lost the race with a re-arm
		return
	}
	d.timer = nil
	d.logger.Debug("idle: forcing minimum")
	d.applier.ApplyForceMinimum(ctx)
	d.setBoosted(false)
}

func (d *Debouncer) reset(ctx context.Context) {
	d.disarm()
	if d.gate.AdaptiveEnabled() {
		d.applier.ApplyForceMinimum(ctx)
	}
	d.setBoosted(false)
}

// arm replaces the pending idle timer.
func (d *Debouncer) arm() {
	d.disarm()
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.cfg.IdleTimeout, func() {
		select {
		case d.expired <- gen:
		case <-d.done:
		}
	})
}

func (d *Debouncer) disarm() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Debouncer) setBoosted(b bool) {
	d.boosted = b
	d.boostedView.Store(b)
	if b {
		metrics.Boosted.Set(1)
	} else {
		metrics.Boosted.Set(0)
	}
}
