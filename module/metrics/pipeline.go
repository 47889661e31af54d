package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arborchain/arbor-go/module"
)

const (
	namespacePipeline = "arbor"
	subsystemCommit   = "commitpipe"
)

// PipelineCollector reports commit pipeline health to prometheus.
type PipelineCollector struct {
	bufferDepth     prometheus.Gauge
	itemsInState    *prometheus.GaugeVec
	rebroadcasts    prometheus.Counter
	resets          prometheus.Counter
	blocksPersisted prometheus.Counter
	messagesDropped prometheus.Counter
}

var _ module.PipelineMetrics = (*PipelineCollector)(nil)

// NewPipelineCollector creates the pipeline collectors and registers them
// with the given registerer.
func NewPipelineCollector(registerer prometheus.Registerer) *PipelineCollector {
	pc := &PipelineCollector{
		bufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespacePipeline,
			Subsystem: subsystemCommit,
			Name:      "buffer_depth",
			Help:      "number of items currently in the commit pipeline buffer",
		}),
		itemsInState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespacePipeline,
			Subsystem: subsystemCommit,
			Name:      "buffer_items",
			Help:      "number of buffer items per pipeline stage",
		}, []string{"state"}),
		rebroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespacePipeline,
			Subsystem: subsystemCommit,
			Name:      "vote_rebroadcasts_total",
			Help:      "number of commit votes re-announced after the staleness deadline",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespacePipeline,
			Subsystem: subsystemCommit,
			Name:      "resets_total",
			Help:      "number of full pipeline resets",
		}),
		blocksPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespacePipeline,
			Subsystem: subsystemCommit,
			Name:      "blocks_persisted_total",
			Help:      "number of blocks handed to the persisting phase",
		}),
		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespacePipeline,
			Subsystem: subsystemCommit,
			Name:      "commit_messages_dropped_total",
			Help:      "number of inbound commit messages discarded during verification",
		}),
	}
	registerer.MustRegister(
		pc.bufferDepth,
		pc.itemsInState,
		pc.rebroadcasts,
		pc.resets,
		pc.blocksPersisted,
		pc.messagesDropped,
	)
	return pc
}

func (pc *PipelineCollector) BufferDepth(depth uint) {
	pc.bufferDepth.Set(float64(depth))
}

func (pc *PipelineCollector) ItemsInState(ordered uint, executed uint, signed uint, aggregated uint) {
	pc.itemsInState.WithLabelValues("ordered").Set(float64(ordered))
	pc.itemsInState.WithLabelValues("executed").Set(float64(executed))
	pc.itemsInState.WithLabelValues("signed").Set(float64(signed))
	pc.itemsInState.WithLabelValues("aggregated").Set(float64(aggregated))
}

func (pc *PipelineCollector) VoteRebroadcast() {
	pc.rebroadcasts.Inc()
}

func (pc *PipelineCollector) PipelineReset() {
	pc.resets.Inc()
}

func (pc *PipelineCollector) BlocksPersisted(count uint) {
	pc.blocksPersisted.Add(float64(count))
}

func (pc *PipelineCollector) CommitMessageDropped() {
	pc.messagesDropped.Inc()
}
