// Package metrics registers the prometheus collectors shared by the
// pipeline workers and the live relayer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RelayedTransactions counts relayed transactions by outcome
	// ("success" or "failure").
	RelayedTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastauth_relayed_transactions_total",
		Help: "Relayed transactions by outcome.",
	}, []string{"status"})

	// PipelineJobs counts processed pipeline jobs by stage queue and
	// outcome ("completed", "requeued", "failed").
	PipelineJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastauth_pipeline_jobs_total",
		Help: "Processed pipeline jobs by queue and outcome.",
	}, []string{"queue", "outcome"})
)
