package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesForwardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routerd_messages_forwarded_total",
			Help: "Messages written to the wire by the egress scheduler.",
		},
		[]string{"link_type", "direction"},
	)

	MessagesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routerd_messages_dropped_total",
			Help: "Ingress messages dropped without any fan-out, by reason.",
		},
		[]string{"reason"},
	)

	FanoutSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "routerd_fanout_size",
			Help:    "Per-ingress-message fan-out count (local links plus transit links).",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	MaskBitsInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "routerd_mask_bits_in_use",
			Help: "Inter-router mask bits currently allocated.",
		},
	)

	MaskBitsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "routerd_mask_bits_total",
			Help: "Width of the mask-bit bitmap.",
		},
	)

	AddressesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "routerd_addresses_total",
			Help: "Current size of the address table.",
		},
	)

	LinksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "routerd_links_total",
			Help: "Open links, by type and direction.",
		},
		[]string{"link_type", "direction"},
	)

	EgressQueueDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "routerd_egress_queue_depth",
			Help:    "Outbound link msg_fifo depth sampled on each writable call (the AMQP offer count).",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	TopologyUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routerd_topology_updates_total",
			Help: "Topology-feed updates applied to the router core, by kind.",
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

// Register registers all router metrics with the default Prometheus
// registry. Safe to call more than once; only the first call registers.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			MessagesForwardedTotal,
			MessagesDroppedTotal,
			FanoutSize,
			MaskBitsInUse,
			MaskBitsTotal,
			AddressesTotal,
			LinksTotal,
			EgressQueueDepth,
			TopologyUpdatesTotal,
		)
	})
}
