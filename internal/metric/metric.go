// Package metric exposes dispatch counters over Prometheus.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	dispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_dispatched_total",
		Help: "Messages handed to a provider, by provider and outcome.",
	}, []string{"provider", "outcome"})

	providerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_errors_total",
		Help: "Normalized provider failures by kind.",
	}, []string{"kind"})
)

func ObserveDispatch(provider, outcome string) {
	dispatched.WithLabelValues(provider, outcome).Inc()
}

func ObserveProviderError(kind string) {
	providerErrors.WithLabelValues(kind).Inc()
}

// Handler serves the registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
