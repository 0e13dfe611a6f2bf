// Package daemon starts and stops interaction capture as the screen turns
// on and off.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nzlov/adaptivehz/internal/keepalive"
)

var errSourceEnded = errors.New("capture source ended")

// Source is one producer of interaction signals.
type Source interface {
	Run(ctx context.Context) error
}

type Resetter interface {
	Reset()
}

type Daemon struct {
	sources    []Source
	supervisor *keepalive.Supervisor
	debouncer  Resetter
	logger     *slog.Logger

	mu      sync.Mutex
	parent  context.Context
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(sources []Source, supervisor *keepalive.Supervisor, debouncer Resetter, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		sources:    sources,
		supervisor: supervisor,
		debouncer:  debouncer,
		logger:     logger.With("component", "daemon"),
		parent:     context.Background(),
	}
}

// Run starts capture and stops it when ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	d.parent = ctx
	d.mu.Unlock()

	d.Start()
	<-ctx.Done()
	d.Stop()
	return ctx.Err()
}

func (d *Daemon) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running || d.parent.Err() != nil {
		return
	}
	d.running = true
	d.logger.Info("start")

	ctx, cancel := context.WithCancel(d.parent)
	d.cancel = cancel
	d.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		d.supervisor.Run(ctx, "capture", d.session)
	}(d.done)
}

func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.running = false
	d.logger.Info("stop")

	d.cancel()
	<-d.done
	d.debouncer.Reset()
}

func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Daemon) ScreenOn()  { d.Start() }
func (d *Daemon) ScreenOff() { d.Stop() }

// session runs every source and ends as soon as any of them does.
func (d *Daemon) session(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range d.sources {
		s := s
		g.Go(func() error {
			err := s.Run(gctx)
			if err == nil {
				err = errSourceEnded
			}
			return err
		})
	}
	return g.Wait()
}
