package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_AllVariablesNonNil(t *testing.T) {
	vars := []struct {
		name string
		val  any
	}{
		{"SignalsTotal", SignalsTotal},
		{"SignalsIgnored", SignalsIgnored},
		{"Boosted", Boosted},
		{"WritesTotal", WritesTotal},
		{"CaptureRestarts", CaptureRestarts},
	}
	for _, v := range vars {
		assert.NotNil(t, v.val, v.name)
	}
}

func TestWritesTotal_Labels(t *testing.T) {
	c := WritesTotal.WithLabelValues("maximum", "ok")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
