package portunus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (e *Engine) metricInc(event, outcome string) {
	if e == nil {
		return
	}
	e.metrics.Inc(event, outcome)
}

// ObserveHTTP records one served request on the engine's registry. It is a
// no-op when metrics are disabled.
func (e *Engine) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if e == nil {
		return
	}
	e.metrics.ObserveHTTP(method, route, status, elapsed)
}

// MetricsHandler serves the engine's Prometheus registry. It answers 404
// when metrics are disabled.
func (e *Engine) MetricsHandler() http.Handler {
	if e == nil {
		return http.NotFoundHandler()
	}
	return e.metrics.Handler()
}

// MetricsRegistry returns the engine's private registry, or nil.
func (e *Engine) MetricsRegistry() *prometheus.Registry {
	if e == nil {
		return nil
	}
	return e.metrics.Registry()
}
