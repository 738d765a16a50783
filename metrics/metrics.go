// Package metrics exports the counters the error taxonomy calls for
// ("increment a counter" on every decode failure) as Prometheus
// metrics, served over /metrics.
//
// Grounded on ptp/sptp/stats/prom_exporter.go's PrometheusExporter
// (its own *prometheus.Registry, promhttp.HandlerFor, ListenAndServe
// on a dedicated port), adapted from PTP servo statistics to the
// peer/directory counters this repo's error taxonomy names.
package metrics

import (
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the counters/gauges a peer or directory process
// exposes. Each process owns one Registry.
type Registry struct {
	reg *prometheus.Registry

	// Datagram-plane error taxonomy (§7): malformed/version-mismatch/
	// unknown-type/CRC failures, all dropped silently at the protocol
	// level but counted here.
	PacketDecodeErrors *prometheus.CounterVec
	NoRouteDrops       prometheus.Counter
	FragmentsInFlight  prometheus.Gauge

	// Directory action counts (§4.2).
	DirectoryActions *prometheus.CounterVec
}

// NewRegistry builds a fresh, unregistered-with-the-default-registry
// Registry — mirroring prom_exporter.go's own private
// *prometheus.Registry rather than the global default, so multiple
// peers in one test binary never collide on metric registration.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		PacketDecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orbitmesh_packet_decode_errors_total",
			Help: "Datagrams dropped at decode time, by reason.",
		}, []string{"reason"}),
		NoRouteDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orbitmesh_no_route_drops_total",
			Help: "Transit packets dropped for lack of a next hop.",
		}),
		FragmentsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orbitmesh_reassembly_fragments_in_flight",
			Help: "Fragments currently buffered awaiting reassembly.",
		}),
		DirectoryActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orbitmesh_directory_actions_total",
			Help: "Directory actions served, by action name.",
		}, []string{"action"}),
	}

	reg.MustRegister(m.PacketDecodeErrors, m.NoRouteDrops, m.FragmentsInFlight, m.DirectoryActions)
	return m
}

// Serve starts the /metrics HTTP endpoint on the given port. It blocks
// and is meant to be run in its own goroutine; a bind failure here is
// logged, not fatal — metrics are an observability extra, not a core
// peer/directory function.
func (m *Registry) Serve(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", port)
	log.Infof("metrics: listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warnf("metrics: server stopped: %v", err)
	}
}
