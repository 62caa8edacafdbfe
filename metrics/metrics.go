// Package metrics exposes the bridge counters as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/sagernet/sing-bridge/counter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Collectors(counters *counter.Counters) []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "bridge",
			Name:      "streams_established_total",
			Help:      "Connections bridged, accepted and dialed combined.",
		}, func() float64 {
			return float64(counters.Streams.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "bridge",
			Name:      "routes_installed_total",
			Help:      "Server and client routes installed.",
		}, func() float64 {
			return float64(counters.Routes.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "bridge",
			Name:      "overflow_events_total",
			Help:      "Write streams dropped because the slot pool was exhausted.",
		}, func() float64 {
			return float64(counters.Overflows.Load())
		}),
	}
}

// Handler registers the counter collectors on a fresh registry and returns
// the scrape endpoint for it.
func Handler(counters *counter.Counters) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	for _, collector := range Collectors(counters) {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
