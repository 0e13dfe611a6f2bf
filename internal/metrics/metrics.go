package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adaptivehz",
		Subsystem: "debounce",
		Name:      "signals_total",
		Help:      "Interaction signals received, by kind",
	}, []string{"kind"})

	SignalsIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adaptivehz",
		Subsystem: "debounce",
		Name:      "signals_ignored_total",
		Help:      "Interaction signals dropped before the state machine, by reason",
	}, []string{"reason"})

	Boosted = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "adaptivehz",
		Subsystem: "debounce",
		Name:      "boosted",
		Help:      "1 while the maximum refresh rate is requested",
	})

	WritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adaptivehz",
		Subsystem: "refresh",
		Name:      "writes_total",
		Help:      "Secure setting writes, by level and result",
	}, []string{"level", "result"})

	CaptureRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "adaptivehz",
		Subsystem: "keepalive",
		Name:      "capture_restarts_total",
		Help:      "Interaction capture sessions restarted by the keep-alive supervisor",
	})
)
