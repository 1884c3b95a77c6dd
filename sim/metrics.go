package sim

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/us-irs/asynchronix/lifecycle"
)

// metricsCollector turns Lifecycle Observer Bus Events into Prometheus
// series, the same role prometheus.NewGaugeVec/CounterVec registered
// against a dedicated *prometheus.Registry play in the retrieval pack's own
// metrics server (keda's pkg/metrics), adapted here from "scaler health"
// counters to simulation epoch/halt/deadlock counters. Each Simulation owns
// its own Registry rather than registering into the global default one, so
// more than one Simulation can coexist in the same process.
type metricsCollector struct {
	registry *prometheus.Registry

	epochsTotal      prometheus.Counter
	modelErrorsTotal prometheus.Counter
	deadlocksTotal   prometheus.Counter
	halted           prometheus.Gauge
	virtualTime      prometheus.Gauge
}

func newMetricsCollector() *metricsCollector {
	m := &metricsCollector{
		registry: prometheus.NewRegistry(),
		epochsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asynchronix",
			Name:      "epochs_total",
			Help:      "Number of simulation epochs completed.",
		}),
		modelErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asynchronix",
			Name:      "model_errors_total",
			Help:      "Number of model handler errors observed.",
		}),
		deadlocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asynchronix",
			Name:      "deadlocks_total",
			Help:      "Number of deadlocks detected by the executor.",
		}),
		halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "asynchronix",
			Name:      "halted",
			Help:      "1 if the simulation has been halted, 0 otherwise.",
		}),
		virtualTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "asynchronix",
			Name:      "virtual_time_seconds",
			Help:      "Current simulation virtual time, in seconds since epoch zero.",
		}),
	}
	m.registry.MustRegister(m.epochsTotal, m.modelErrorsTotal, m.deadlocksTotal, m.halted, m.virtualTime)
	return m
}

// ID identifies this observer on the Lifecycle Observer Bus.
func (m *metricsCollector) ID() string { return "prometheus-metrics" }

// OnEvent updates the Prometheus series for event and always returns nil:
// a metrics update is never allowed to fail lifecycle delivery.
func (m *metricsCollector) OnEvent(_ context.Context, event lifecycle.Event) error {
	m.virtualTime.Set(float64(event.Time.Seconds) + float64(event.Time.SubsecNanos)/1e9)

	switch event.Kind {
	case lifecycle.EventEpochCompleted:
		m.epochsTotal.Inc()
	case lifecycle.EventModelError, lifecycle.EventModelPanic:
		m.modelErrorsTotal.Inc()
	case lifecycle.EventDeadlockDetected:
		m.deadlocksTotal.Inc()
	case lifecycle.EventHalted:
		m.halted.Set(1)
	}
	return nil
}

// MetricsRegistry returns the Simulation's Prometheus registry, for a host
// to expose via promhttp.HandlerFor at its own /metrics endpoint.
func (s *Simulation) MetricsRegistry() *prometheus.Registry {
	return s.metrics.registry
}
