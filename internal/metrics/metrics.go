// Package metrics defines the optional Prometheus collectors for a run,
// grounded on
// Adithya-Monish-Kumar-K-Distributed-Search-Analytics-Platform/pkg/metrics/metrics.go's
// New()/Handler() shape: a struct of pre-registered collectors plus a
// promhttp handler, enabled only when the CLI's --metrics-addr flag is
// set.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exposed for one lpi run.
type Metrics struct {
	LinesProcessedTotal   prometheus.Counter
	ChunksProcessedTotal  prometheus.Counter
	DictionaryEntries     prometheus.Gauge
	DictionaryRehashTotal prometheus.Counter
	ChunkQueueDepth       prometheus.Gauge
	InsertsTotal          *prometheus.CounterVec
	LocationsDroppedTotal prometheus.Counter
}

// New creates and registers the collectors against a fresh registry, so
// that running lpi as a library (e.g. in a test) never collides with a
// process-wide default registry already carrying other collectors.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		LinesProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lpi_lines_processed_total",
			Help: "Total input lines processed across all workers.",
		}),
		ChunksProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lpi_chunks_processed_total",
			Help: "Total chunks consumed by workers.",
		}),
		DictionaryEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lpi_dictionary_entries",
			Help: "Distinct addresses currently held in the address dictionary.",
		}),
		DictionaryRehashTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lpi_dictionary_rehashes_total",
			Help: "Total dictionary rehash operations performed.",
		}),
		ChunkQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lpi_chunk_queue_depth",
			Help: "Chunks currently buffered between the dispatcher and the workers.",
		}),
		InsertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpi_dictionary_inserts_total",
			Help: "Dictionary insert outcomes by kind (new, existing).",
		}, []string{"kind"}),
		LocationsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lpi_locations_dropped_total",
			Help: "Locations dropped because a per-address array hit its capacity ceiling.",
		}),
	}

	reg.MustRegister(
		m.LinesProcessedTotal,
		m.ChunksProcessedTotal,
		m.DictionaryEntries,
		m.DictionaryRehashTotal,
		m.ChunkQueueDepth,
		m.InsertsTotal,
		m.LocationsDroppedTotal,
	)

	return m, reg
}

// Handler returns the Prometheus scrape handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
