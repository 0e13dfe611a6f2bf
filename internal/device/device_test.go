package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nzlov/adaptivehz/internal/shell/shelltest"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		manufacturer, brand string
		want                Vendor
	}{
		{"samsung", "samsung", Samsung},
		{"SAMSUNG", "", Samsung},
		{"", "Samsung", Samsung},
		{"Xiaomi", "Redmi", Xiaomi},
		{"xiaomi", "POCO", Xiaomi},
		{"", "redmi", Xiaomi},
		{"Google", "google", Other},
		{"", "", Other},
		{"OnePlus", "OnePlus", Other},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Detect(c.manufacturer, c.brand), "%q/%q", c.manufacturer, c.brand)
	}
}

func TestDetect_XiaomiWinsOverSamsung(t *testing.T) {
	for _, xi := range []string{"xiaomi", "Redmi", "POCO"} {
		assert.Equal(t, Xiaomi, Detect("samsung", xi))
		assert.Equal(t, Xiaomi, Detect(xi, "samsung"))
		assert.Equal(t, Xiaomi, Detect("samsung "+xi, "samsung"))
	}
}

func TestVendorString(t *testing.T) {
	assert.Equal(t, "SAMSUNG", Samsung.String())
	assert.Equal(t, "XIAOMI", Xiaomi.String())
	assert.Equal(t, "OTHER", Other.String())
	b, err := Xiaomi.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "XIAOMI", string(b))
}

func TestDetector_ProbesOnce(t *testing.T) {
	f := shelltest.New().
		On("getprop ro.product.manufacturer", "Xiaomi\n", nil).
		On("getprop ro.product.brand", "Redmi\n", nil)
	d := NewDetector(f, Identity{})

	ctx := context.Background()
	assert.Equal(t, Xiaomi, d.Vendor(ctx))
	assert.Equal(t, Xiaomi, d.Vendor(ctx))
	assert.Equal(t, Identity{Manufacturer: "Xiaomi", Brand: "Redmi"}, d.Identity(ctx))
	assert.Equal(t, 1, f.Count("getprop ro.product.manufacturer"))
	assert.Equal(t, 1, f.Count("getprop ro.product.brand"))
}

func TestDetector_Override(t *testing.T) {
	f := shelltest.New()
	d := NewDetector(f, Identity{Manufacturer: "samsung", Brand: "samsung"})
	assert.Equal(t, Samsung, d.Vendor(context.Background()))
	assert.Empty(t, f.Calls())
}

func TestDetector_ProbeFailureIsOther(t *testing.T) {
	f := shelltest.New().
		On("getprop ro.product.manufacturer", "", errors.New("boom")).
		On("getprop ro.product.brand", "", errors.New("boom"))
	d := NewDetector(f, Identity{})
	assert.Equal(t, Other, d.Vendor(context.Background()))
}
