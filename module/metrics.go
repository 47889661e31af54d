package module

// PipelineMetrics exposes the health of the commit pipeline. The driver
// refreshes the gauges on every tick.
type PipelineMetrics interface {
	// BufferDepth reports the current number of items in the pipeline buffer.
	BufferDepth(depth uint)

	// ItemsInState reports how many buffer items currently sit in each stage.
	ItemsInState(ordered uint, executed uint, signed uint, aggregated uint)

	// VoteRebroadcast counts commit votes re-announced after the broadcast
	// staleness deadline.
	VoteRebroadcast()

	// PipelineReset counts full pipeline resets, whether requested or
	// triggered by an epoch boundary.
	PipelineReset()

	// BlocksPersisted counts blocks handed to the persisting phase.
	BlocksPersisted(count uint)

	// CommitMessageDropped counts inbound commit messages discarded during
	// verification.
	CommitMessageDropped()
}
