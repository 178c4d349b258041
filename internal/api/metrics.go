package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/motion-hub/motion-hub/internal/models"
	"github.com/motion-hub/motion-hub/internal/session"
	"github.com/motion-hub/motion-hub/pkg/motion"
)

// Metrics collects hub-level Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	commandsTotal     *prometheus.CounterVec
	commandErrors     *prometheus.CounterVec
	activeConnections prometheus.Gauge
}

// NewMetrics creates and registers the hub metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "motionhub",
			Name:      "commands_total",
			Help:      "Commands dispatched to device sessions",
		}, []string{"command"}),
		commandErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "motionhub",
			Name:      "command_errors_total",
			Help:      "Commands that failed",
		}, []string{"command"}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "motionhub",
			Name:      "active_connections",
			Help:      "Devices currently connected",
		}),
	}
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCommand records a dispatched command and its outcome
func (m *Metrics) ObserveCommand(cmd models.CommandType, err error) {
	m.commandsTotal.WithLabelValues(string(cmd)).Inc()
	if err != nil {
		m.commandErrors.WithLabelValues(string(cmd)).Inc()
	}
}

// Watch follows the manager's status stream and keeps the connection
// gauge current. The goroutine exits when the manager closes.
func (m *Metrics) Watch(manager *session.Manager) {
	events, _ := manager.Subscribe()

	go func() {
		connected := make(map[motion.MACAddress]bool)
		for event := range events {
			switch event.State {
			case models.StateConnected:
				if !connected[event.MAC] {
					connected[event.MAC] = true
					m.activeConnections.Inc()
				}
			case models.StateDisconnected:
				if connected[event.MAC] {
					delete(connected, event.MAC)
					m.activeConnections.Dec()
				}
			}
		}
	}()
}
