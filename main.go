package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nzlov/adaptivehz/internal/api"
	"github.com/nzlov/adaptivehz/internal/boot"
	"github.com/nzlov/adaptivehz/internal/config"
	"github.com/nzlov/adaptivehz/internal/daemon"
	"github.com/nzlov/adaptivehz/internal/debounce"
	"github.com/nzlov/adaptivehz/internal/device"
	"github.com/nzlov/adaptivehz/internal/display"
	"github.com/nzlov/adaptivehz/internal/interaction"
	"github.com/nzlov/adaptivehz/internal/keepalive"
	"github.com/nzlov/adaptivehz/internal/prefs"
	"github.com/nzlov/adaptivehz/internal/refresh"
	"github.com/nzlov/adaptivehz/internal/screen"
	"github.com/nzlov/adaptivehz/internal/settings"
	"github.com/nzlov/adaptivehz/internal/shell"
)

func main() {
	cfgPath := config.DefaultPath
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	if err := config.InitFile(cfgPath); err != nil {
		slog.Warn("cannot write default config", "path", cfgPath, "error", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := setupLogger(cfg.Log.Level)
	slog.Info("config loaded", "path", cfgPath, "listen", cfg.ListenAddr, "idle_timeout", cfg.Debounce.IdleTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("adaptivehz exited", "error", err)
		os.Exit(1)
	}
	slog.Info("adaptivehz stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	runner := shell.Exec{}

	store, err := prefs.Open(cfg.PrefsPath, logger)
	if err != nil {
		return err
	}

	detector := device.NewDetector(runner, device.Identity{
		Manufacturer: cfg.Device.Manufacturer,
		Brand:        cfg.Device.Brand,
	})
	ctrl := refresh.NewController(detector, settings.NewSecure(runner), display.NewProbe(runner), logger)

	deb := debounce.New(ctrl, store, debounce.Config{
		IdleTimeout: cfg.Debounce.IdleTimeout,
		OwnPackage:  cfg.Package,
	}, logger)

	supervisor := keepalive.New(logger)
	store.OnChange(func(f prefs.Flags) {
		supervisor.Set(f.KeepAliveEnabled)
	})

	fg := &interaction.Foreground{}
	d := daemon.New([]daemon.Source{
		interaction.NewGetEvent(runner, cfg.Input.Device, fg, deb, logger),
		interaction.NewActivityPoller(runner, cfg.Input.ActivityPoll, fg, deb, logger),
	}, supervisor, deb, logger)

	boot.Run(ctx, store.Flags(), ctrl, supervisor)

	srv := api.New(api.Deps{
		Controller:  ctrl,
		Prefs:       store,
		Signals:     deb,
		State:       deb,
		Logger:      logger,
		SignalRPS:   cfg.API.SignalRPS,
		SignalBurst: cfg.API.SignalBurst,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deb.Run(gctx) })
	g.Go(func() error { return d.Run(gctx) })
	g.Go(func() error { return screen.NewWatcher(cfg.BacklightPath, d, logger).Run(gctx) })
	g.Go(func() error { return srv.Run(gctx, cfg.ListenAddr) })
	g.Go(func() error {
		if err := store.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("prefs watcher stopped", "error", err)
		}
		<-gctx.Done()
		return gctx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
