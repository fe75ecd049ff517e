// Package kmetrics exposes the core's ambient observability surface:
// prometheus counters/gauges for the write/read/index/worker paths,
// registered against the default registry and served over /metrics by
// whichever binary embeds the dispatcher.
package kmetrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RecordWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "katamari_record_writes_total",
		Help: "Total Set operations applied to the on-disk record engine.",
	})

	RecordReads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "katamari_record_reads_total",
		Help: "Total Get operations served by the on-disk record engine.",
	})

	MVCCCommits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "katamari_mvcc_commits_total",
		Help: "Total transactions committed against the MVCC store.",
	})

	IndexQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "katamari_search_index_queue_depth",
		Help: "Pending documents awaiting the next index batch.",
	})

	TTLHeapSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "katamari_orm_ttl_heap_size",
		Help: "Entries currently pending in the TTL expiry heap.",
	})

	WorkersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "katamari_dispatch_workers_connected",
		Help: "Currently connected worker nodes.",
	})

	WorkerWorkload = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "katamari_dispatch_worker_workload",
		Help: "Last reported workload per worker.",
	}, []string{"worker_id"})

	ShardsAssigned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "katamari_dispatch_shards_assigned_total",
		Help: "Total shard assignments dispatched to workers.",
	})
)

func init() {
	prometheus.MustRegister(
		RecordWrites,
		RecordReads,
		MVCCCommits,
		IndexQueueDepth,
		TTLHeapSize,
		WorkersConnected,
		WorkerWorkload,
		ShardsAssigned,
	)
}
