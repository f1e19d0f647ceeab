// Package metrics exposes hub presence and delivery figures as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roomcast"

// Collector implements hub.Observer on top of Prometheus collectors.
type Collector struct {
	registry        *prometheus.Registry
	namespaceCount  *prometheus.GaugeVec
	roomCount       *prometheus.GaugeVec
	delivered       *prometheus.CounterVec
	deliveryFailure *prometheus.CounterVec
	rejected        *prometheus.CounterVec
}

// New creates a Collector registered on its own registry, together with the Go
// runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		namespaceCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "namespace_connections",
			Help:      "Live number of connections attached to a namespace.",
		}, []string{"namespace"}),
		roomCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "room_connections",
			Help:      "Live number of connections in a room.",
		}, []string{"namespace", "room"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Events handed to connection send buffers.",
		}, []string{"namespace", "event"}),
		deliveryFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Per-recipient deliveries that failed and were skipped.",
		}, []string{"namespace", "event"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_rejected_total",
			Help:      "Inbound client events rejected by the transport, by reason.",
		}, []string{"reason"}),
	}
	c.registry.MustRegister(
		c.namespaceCount,
		c.roomCount,
		c.delivered,
		c.deliveryFailure,
		c.rejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// NamespaceCount records the live size of a namespace.
func (c *Collector) NamespaceCount(ns string, count int) {
	c.namespaceCount.WithLabelValues(ns).Set(float64(count))
}

// RoomCount records the live size of a room. Empty rooms are pruned from the
// hub, so their series is dropped rather than kept at zero.
func (c *Collector) RoomCount(ns, room string, count int) {
	if count <= 0 {
		c.roomCount.DeleteLabelValues(ns, room)
		return
	}
	c.roomCount.WithLabelValues(ns, room).Set(float64(count))
}

// Delivered counts successful deliveries of one fan-out.
func (c *Collector) Delivered(ns, event string, n int) {
	if n <= 0 {
		return
	}
	c.delivered.WithLabelValues(ns, event).Add(float64(n))
}

// DeliveryFailed counts one failed recipient.
func (c *Collector) DeliveryFailed(ns, event string) {
	c.deliveryFailure.WithLabelValues(ns, event).Inc()
}

// Rejected counts an inbound event dropped by the transport.
func (c *Collector) Rejected(reason string) {
	c.rejected.WithLabelValues(reason).Inc()
}

// Registry returns the registry the collectors live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
