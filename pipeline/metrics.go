package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline throughput metrics
	GenesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globalcalls_genes_processed_total",
		Help: "Genes propagated and reconciled by pipeline workers",
	}, []string{"species", "cond_params"})

	UnitsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globalcalls_units_enqueued_total",
		Help: "Per-gene result units handed to the writer",
	}, []string{"species", "cond_params"})

	RowsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globalcalls_rows_inserted_total",
		Help: "Rows inserted by the writer, committed or not",
	}, []string{"table"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "globalcalls_queue_depth",
		Help: "Units waiting between workers and the writer",
	})

	WorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "globalcalls_workers_active",
		Help: "Gene batches currently being processed",
	})
)
