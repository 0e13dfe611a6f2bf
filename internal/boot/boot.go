// Package boot restores the persisted mode when the daemon starts, the way a
// BOOT_COMPLETED receiver would.
package boot

import (
	"context"
	"log/slog"

	"github.com/nzlov/adaptivehz/internal/prefs"
)

type MinimumApplier interface {
	ApplyForceMinimum(ctx context.Context)
}

type KeepAlive interface {
	Enable()
}

// Run pre-applies the minimum rate when adaptive mode was left on and starts
// keep-alive when it was enabled.
func Run(ctx context.Context, flags prefs.Flags, applier MinimumApplier, keepAlive KeepAlive) {
	slog.Info("restoring mode", "dynamic_enabled", flags.DynamicEnabled, "keep_alive_enabled", flags.KeepAliveEnabled)
	if flags.DynamicEnabled {
		applier.ApplyForceMinimum(ctx)
	}
	if flags.KeepAliveEnabled {
		keepAlive.Enable()
	}
}
