package tdslock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	acquireCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tdslock",
		Subsystem: "applock",
		Name:      "acquire_total",
		Help:      "Application lock acquisition attempts by requested mode and server outcome.",
	}, []string{"mode", "outcome"})
	releaseCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tdslock",
		Subsystem: "applock",
		Name:      "release_total",
		Help:      "Application lock release attempts.",
	}, []string{"success"})
	heldGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tdslock",
		Subsystem: "applock",
		Name:      "held_locks",
		Help:      "Application locks currently held under a guard in this process.",
	})
	managerGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tdslock",
		Subsystem: "manager",
		Name:      "held_locks",
		Help:      "Named locks currently held by session lock managers in this process.",
	})
)
