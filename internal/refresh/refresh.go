// Package refresh turns a requested level into the vendor secure setting that
// selects it, and writes it.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/nzlov/adaptivehz/internal/device"
	"github.com/nzlov/adaptivehz/internal/metrics"
)

const (
	KeyRefreshMode   = "refresh_rate_mode"
	KeyXiaomiRefresh = "miui_refresh_rate"

	// refresh_rate_mode values. 1 is the vendor's own adaptive mode and is
	// never written here.
	ModeNormal   = 0
	ModeAdaptive = 1
	ModeHigh     = 2

	// Some HyperOS panels flicker below this.
	MinFloorHz = 60

	Unavailable = "(unavailable)"
)

// DefaultXiaomiRange is used when the display modes cannot be enumerated.
var DefaultXiaomiRange = Range{MinHz: 60, MaxHz: 120}

type Level int

const (
	Minimum Level = iota
	Maximum
)

func (l Level) String() string {
	if l == Maximum {
		return "maximum"
	}
	return "minimum"
}

type Range struct {
	MinHz int `json:"min_hz"`
	MaxHz int `json:"max_hz"`
}

type VendorSource interface {
	Vendor(ctx context.Context) device.Vendor
}

type SettingsStore interface {
	GetInt(ctx context.Context, key string) (int, error)
	PutInt(ctx context.Context, key string, value int) error
}

type RateProbe interface {
	SupportedRates(ctx context.Context) ([]float64, error)
	CurrentRate(ctx context.Context) (float64, error)
}

type Status struct {
	Vendor       device.Vendor `json:"vendor"`
	SettingKey   string        `json:"setting_key"`
	SettingValue string        `json:"setting_value"`
	DisplayHz    float64       `json:"display_hz"`
}

type Controller struct {
	vendors  VendorSource
	settings SettingsStore
	display  RateProbe
	logger   *slog.Logger

	xiaomiOnce  sync.Once
	xiaomiRange Range
}

func NewController(vendors VendorSource, settings SettingsStore, display RateProbe, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		vendors:  vendors,
		settings: settings,
		display:  display,
		logger:   logger.With("component", "refresh"),
	}
}

// ResolveRange derives the writable Xiaomi range from the advertised rates.
func ResolveRange(rates []float64) Range {
	seen := map[int]struct{}{}
	var hz []int
	for _, r := range rates {
		v := int(r)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		hz = append(hz, v)
	}
	if len(hz) == 0 {
		return DefaultXiaomiRange
	}
	sort.Ints(hz)

	minHz, maxHz := hz[0], hz[len(hz)-1]
	if minHz < MinFloorHz {
		minHz = MinFloorHz
	}
	if maxHz < minHz {
		maxHz = minHz
	}
	return Range{MinHz: minHz, MaxHz: maxHz}
}

// XiaomiRange probes the display once; the result, including the fallback,
// is kept for the life of the controller.
func (c *Controller) XiaomiRange(ctx context.Context) Range {
	c.xiaomiOnce.Do(func() {
		rates, err := c.display.SupportedRates(ctx)
		if err != nil {
			c.logger.Warn("display mode probe failed, using default range", "error", err)
			rates = nil
		}
		c.xiaomiRange = ResolveRange(rates)
		c.logger.Info("xiaomi range resolved", "min_hz", c.xiaomiRange.MinHz, "max_hz", c.xiaomiRange.MaxHz)
	})
	return c.xiaomiRange
}

// Target is the key/value pair that requests level on this device.
func (c *Controller) Target(ctx context.Context, level Level) (string, int) {
	switch c.vendors.Vendor(ctx) {
	case device.Xiaomi:
		r := c.XiaomiRange(ctx)
		if level == Maximum {
			return KeyXiaomiRefresh, r.MaxHz
		}
		return KeyXiaomiRefresh, r.MinHz
	default:
		if level == Maximum {
			return KeyRefreshMode, ModeHigh
		}
		return KeyRefreshMode, ModeNormal
	}
}

// Apply writes the setting for level and reports failure. Callers acting on a
// user request use it to surface permission problems.
func (c *Controller) Apply(ctx context.Context, level Level) error {
	key, value := c.Target(ctx, level)
	if err := c.settings.PutInt(ctx, key, value); err != nil {
		metrics.WritesTotal.WithLabelValues(level.String(), "error").Inc()
		return fmt.Errorf("apply %s: %w", level, err)
	}
	metrics.WritesTotal.WithLabelValues(level.String(), "ok").Inc()
	c.logger.Debug("refresh rate applied", "level", level, "key", key, "value", value)
	return nil
}

func (c *Controller) ApplyForceMinimum(ctx context.Context) { c.applyBestEffort(ctx, Minimum) }

func (c *Controller) ApplyForceMaximum(ctx context.Context) { c.applyBestEffort(ctx, Maximum) }

func (c *Controller) applyBestEffort(ctx context.Context, level Level) {
	if err := c.Apply(ctx, level); err != nil {
		c.logger.Error("failed to set refresh rate", "level", level, "error", err)
	}
}

// ReadStatus is advisory and never fails; unreadable parts are replaced by
// Unavailable or 0.
func (c *Controller) ReadStatus(ctx context.Context) Status {
	vendor := c.vendors.Vendor(ctx)
	st := Status{Vendor: vendor, SettingKey: Unavailable, SettingValue: Unavailable}

	key := KeyRefreshMode
	if vendor == device.Xiaomi {
		key = KeyXiaomiRefresh
	}
	if v, err := c.settings.GetInt(ctx, key); err == nil {
		st.SettingKey = key
		st.SettingValue = strconv.Itoa(v)
		if vendor == device.Samsung {
			st.SettingValue = samsungModeLabel(v)
		}
	}

	if hz, err := c.display.CurrentRate(ctx); err == nil {
		st.DisplayHz = hz
	}
	return st
}

func samsungModeLabel(v int) string {
	switch v {
	case ModeNormal:
		return "0 (Normal/Min)"
	case ModeAdaptive:
		return "1 (Adaptive)"
	case ModeHigh:
		return "2 (High/Max)"
	default:
		return strconv.Itoa(v)
	}
}
