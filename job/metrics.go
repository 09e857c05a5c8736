package job

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// JobsCompleted counts species jobs by terminal state
var JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "globalcalls_species_jobs_total",
	Help: "Species jobs by outcome (commit or rollback)",
}, []string{"outcome"})
