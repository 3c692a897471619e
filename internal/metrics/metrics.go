// Package metrics holds the Prometheus collectors exported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PassRejections counts pass documents that failed validation, by first failing field.
	PassRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "onepass",
		Name:      "pass_rejections_total",
		Help:      "Pass documents rejected during mapping, by field.",
	}, []string{"field"})

	// ActiveWatches is the number of upstream document subscriptions currently open.
	ActiveWatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "onepass",
		Name:      "active_watches",
		Help:      "Open upstream pass subscriptions.",
	})

	// WatchObservers is the number of observers attached to pass streams.
	WatchObservers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "onepass",
		Name:      "watch_observers",
		Help:      "Observers attached to pass streams.",
	})

	// PassOps counts service operations by name and outcome.
	PassOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "onepass",
		Name:      "pass_operations_total",
		Help:      "Pass operations by name and result.",
	}, []string{"op", "result"})
)

// Result returns the outcome label for err.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
