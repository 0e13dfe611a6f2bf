// Package device classifies the phone into one of the vendor families whose
// refresh rate can be driven through secure settings.
package device

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/nzlov/adaptivehz/internal/shell"
)

type Vendor int

const (
	// Other covers every ROM without a dedicated key.
	Other Vendor = iota
	// Samsung is One UI.
	Samsung
	// Xiaomi is MIUI / HyperOS on Xiaomi, Redmi and POCO.
	Xiaomi
)

func (v Vendor) String() string {
	switch v {
	case Samsung:
		return "SAMSUNG"
	case Xiaomi:
		return "XIAOMI"
	default:
		return "OTHER"
	}
}

func (v Vendor) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

var (
	xiaomiFamily = []string{"xiaomi", "redmi", "poco"}
	samsungNames = []string{"samsung"}
)

// Detect maps the manufacturer and brand strings to a vendor. The Xiaomi family
// wins over Samsung when both match.
func Detect(manufacturer, brand string) Vendor {
	m := strings.ToLower(manufacturer)
	b := strings.ToLower(brand)
	switch {
	case containsAny(m, xiaomiFamily) || containsAny(b, xiaomiFamily):
		return Xiaomi
	case containsAny(m, samsungNames) || containsAny(b, samsungNames):
		return Samsung
	default:
		return Other
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Identity is the static build identity the vendor is derived from.
type Identity struct {
	Manufacturer string
	Brand        string
}

// ReadIdentity reads ro.product.manufacturer and ro.product.brand. A failed
// read leaves that field empty.
func ReadIdentity(ctx context.Context, r shell.Runner) Identity {
	return Identity{
		Manufacturer: getprop(ctx, r, "ro.product.manufacturer"),
		Brand:        getprop(ctx, r, "ro.product.brand"),
	}
}

func getprop(ctx context.Context, r shell.Runner, name string) string {
	out, err := r.Run(ctx, "getprop", name)
	if err != nil {
		slog.Warn("getprop failed", "prop", name, "error", err)
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Detector resolves the vendor on first use and caches it for the process.
type Detector struct {
	runner   shell.Runner
	override Identity

	once   sync.Once
	vendor Vendor
	id     Identity
}

// NewDetector returns a Detector. Non-empty fields in override replace the
// probed values.
func NewDetector(r shell.Runner, override Identity) *Detector {
	return &Detector{runner: r, override: override}
}

func (d *Detector) Vendor(ctx context.Context) Vendor {
	d.once.Do(func() {
		id := Identity{Manufacturer: d.override.Manufacturer, Brand: d.override.Brand}
		if id.Manufacturer == "" || id.Brand == "" {
			probed := ReadIdentity(ctx, d.runner)
			if id.Manufacturer == "" {
				id.Manufacturer = probed.Manufacturer
			}
			if id.Brand == "" {
				id.Brand = probed.Brand
			}
		}
		d.id = id
		d.vendor = Detect(id.Manufacturer, id.Brand)
		slog.Info("vendor detected", "manufacturer", id.Manufacturer, "brand", id.Brand, "vendor", d.vendor)
	})
	return d.vendor
}

// Identity returns the identity the vendor was derived from.
func (d *Detector) Identity(ctx context.Context) Identity {
	d.Vendor(ctx)
	return d.id
}
